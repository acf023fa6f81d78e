package store

import (
	"strconv"

	"github.com/airdock-app/airdock/daemon/config"
)

const (
	keyDefaultDownloadDir = "transfer.default_download_dir"
	keyMaxParallelFiles   = "transfer.max_parallel_files"
	keyMaxInflightChunks  = "transfer.max_inflight_chunks"
	keyChunkSizeKB        = "transfer.chunk_size_kb"
	keyAutoCleanupDays    = "transfer.auto_cleanup_days"
	keyResumeEnabled      = "transfer.resume_enabled"
	keyDiscoveryEnabled   = "transfer.discovery_enabled"
	keyPairingRequired    = "transfer.pairing_required"
	keyPipelineV2Enabled  = "transfer.pipeline_v2_enabled"
	keyCodecV2Enabled      = "transfer.codec_v2_enabled"
	keyDBFlushIntervalMS   = "transfer.db_flush_interval_ms"
	keyEventEmitIntervalMS = "transfer.event_emit_interval_ms"
	keyAckBatchSize        = "transfer.ack_batch_size"
	keyAckFlushIntervalMS  = "transfer.ack_flush_interval_ms"
)

func (s *Store) getAppSetting(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) setAppSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func parseBoolSetting(raw string, present bool, fallback bool) bool {
	if !present {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseIntSetting(raw string, present bool, fallback int) int {
	if !present {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// LoadSettings reads persisted settings, filling missing keys with defaults, clamping every
// numeric field to its documented range, then re-persisting the normalized values.
func (s *Store) LoadSettings(defaultDownloadDir string) (config.Settings, error) {
	settings := config.DefaultSettings(defaultDownloadDir)

	if v, ok, err := s.getAppSetting(keyDefaultDownloadDir); err != nil {
		return config.Settings{}, err
	} else if ok {
		settings.DefaultDownloadDir = v
	}

	intFields := []struct {
		key string
		dst *int
	}{
		{keyMaxParallelFiles, &settings.MaxParallelFiles},
		{keyMaxInflightChunks, &settings.MaxInflightChunks},
		{keyChunkSizeKB, &settings.ChunkSizeKB},
		{keyAutoCleanupDays, &settings.AutoCleanupDays},
		{keyDBFlushIntervalMS, &settings.DBFlushIntervalMS},
		{keyEventEmitIntervalMS, &settings.EventEmitIntervalMS},
		{keyAckBatchSize, &settings.AckBatchSize},
		{keyAckFlushIntervalMS, &settings.AckFlushIntervalMS},
	}
	for _, f := range intFields {
		v, ok, err := s.getAppSetting(f.key)
		if err != nil {
			return config.Settings{}, err
		}
		*f.dst = parseIntSetting(v, ok, *f.dst)
	}

	boolFields := []struct {
		key string
		dst *bool
	}{
		{keyResumeEnabled, &settings.ResumeEnabled},
		{keyDiscoveryEnabled, &settings.DiscoveryEnabled},
		{keyPairingRequired, &settings.PairingRequired},
		{keyPipelineV2Enabled, &settings.PipelineV2Enabled},
		{keyCodecV2Enabled, &settings.CodecV2Enabled},
	}
	for _, f := range boolFields {
		v, ok, err := s.getAppSetting(f.key)
		if err != nil {
			return config.Settings{}, err
		}
		*f.dst = parseBoolSetting(v, ok, *f.dst)
	}

	settings.Clamp(defaultDownloadDir)
	if err := s.SaveSettings(settings); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

// SaveSettings persists every settings field as a key/value pair.
func (s *Store) SaveSettings(settings config.Settings) error {
	pairs := map[string]string{
		keyDefaultDownloadDir:  settings.DefaultDownloadDir,
		keyMaxParallelFiles:    strconv.Itoa(settings.MaxParallelFiles),
		keyMaxInflightChunks:   strconv.Itoa(settings.MaxInflightChunks),
		keyChunkSizeKB:         strconv.Itoa(settings.ChunkSizeKB),
		keyAutoCleanupDays:     strconv.Itoa(settings.AutoCleanupDays),
		keyResumeEnabled:       strconv.FormatBool(settings.ResumeEnabled),
		keyDiscoveryEnabled:    strconv.FormatBool(settings.DiscoveryEnabled),
		keyPairingRequired:     strconv.FormatBool(settings.PairingRequired),
		keyPipelineV2Enabled:   strconv.FormatBool(settings.PipelineV2Enabled),
		keyCodecV2Enabled:      strconv.FormatBool(settings.CodecV2Enabled),
		keyDBFlushIntervalMS:   strconv.Itoa(settings.DBFlushIntervalMS),
		keyEventEmitIntervalMS: strconv.Itoa(settings.EventEmitIntervalMS),
		keyAckBatchSize:        strconv.Itoa(settings.AckBatchSize),
		keyAckFlushIntervalMS:  strconv.Itoa(settings.AckFlushIntervalMS),
	}
	for key, value := range pairs {
		if err := s.setAppSetting(key, value); err != nil {
			return err
		}
	}
	return nil
}
