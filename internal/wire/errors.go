package wire

// Stable machine-readable error codes surfaced over the wire and from the service facade.
// These strings are the public contract; renaming one is a breaking protocol change.
const (
	ErrPeerNotFound                    = "transfer_peer_not_found"
	ErrSettingDownloadDirInvalid       = "transfer_setting_download_dir_invalid"
	ErrSessionNotRunning               = "transfer_session_not_running"
	ErrSessionNotRetryable             = "transfer_session_not_retryable"
	ErrSessionRetryDirectionInvalid    = "transfer_session_retry_direction_invalid"
	ErrRetryPairCodeMissing            = "transfer_retry_pair_code_missing"
	ErrPairCodeMissing                 = "transfer_pair_code_missing"
	ErrPairCodeExpired                 = "transfer_pair_code_expired"
	ErrPairCodeInvalid                 = "transfer_pair_code_invalid"
	ErrAuthFailed                      = "transfer_auth_failed"
	ErrProtocolHelloInvalid            = "transfer_protocol_hello_invalid"
	ErrProtocolChallengeInvalid        = "transfer_protocol_challenge_invalid"
	ErrProtocolAuthResponseInvalid     = "transfer_protocol_auth_response_invalid"
	ErrProtocolAuthInvalid             = "transfer_protocol_auth_invalid"
	ErrProtocolManifestInvalid         = "transfer_protocol_manifest_invalid"
	ErrProtocolManifestAckInvalid      = "transfer_protocol_manifest_ack_invalid"
	ErrFrameModeInvalid                = "transfer_frame_mode_invalid"
	ErrFrameLengthInvalid              = "transfer_frame_length_invalid"
	ErrFrameCodecUnexpected            = "transfer_frame_codec_unexpected"
	ErrFrameTooLarge                   = "transfer_frame_too_large"
	ErrFrameParseFailed                = "transfer_frame_parse_failed"
	ErrFrameSerializeFailed            = "transfer_frame_serialize_failed"
	ErrFrameUnexpectedEncrypted        = "transfer_frame_unexpected_encrypted"
	ErrChunkDecodeFailed               = "transfer_chunk_decode_failed"
	ErrChunkRetryExhausted             = "transfer_chunk_retry_exhausted"
	ErrChunkAckTimeout                 = "transfer_chunk_ack_timeout"
	ErrChunkHashMismatch               = "chunk_hash_mismatch"
	ErrFileHashMismatch                = "transfer_file_hash_mismatch"
	ErrSourceOpenFailed                = "transfer_source_open_failed"
	ErrSourceSeekFailed                = "transfer_source_seek_failed"
	ErrSourceReadFailed                = "transfer_source_read_failed"
	ErrTargetOpenFailed                = "transfer_target_open_failed"
	ErrTargetSeekFailed                = "transfer_target_seek_failed"
	ErrTargetWriteFailed               = "transfer_target_write_failed"
	ErrTargetFlushFailed               = "transfer_target_flush_failed"
	ErrTargetPreallocateFailed         = "transfer_target_preallocate_failed"
	ErrTargetDirCreateFailed           = "transfer_target_dir_create_failed"
	ErrTargetRenameFailed              = "transfer_target_rename_failed"
	ErrConnectionClosed                = "transfer_connection_closed"
	ErrIO                              = "transfer_io_error"
	ErrSessionCanceled                 = "transfer_session_canceled"
	ErrRuntimeFileMissing              = "transfer_runtime_file_missing"
	ErrSessionNotFound                 = "transfer_session_not_found"
)

// Error is a stable machine-readable transfer error: a code, a human-readable message, and
// whether the failing operation may be safely retried by the caller.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError builds a non-retryable Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewRetryableError builds an Error flagged retryable.
func NewRetryableError(code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: true}
}
