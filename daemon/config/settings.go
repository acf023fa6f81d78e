package config

// Settings are the user-facing, persisted transfer preferences. Every numeric field is clamped
// to its documented range on load and on update; clamping never errors, it silently corrects.
type Settings struct {
	DefaultDownloadDir  string `json:"default_download_dir"`
	MaxParallelFiles    int    `json:"max_parallel_files"`
	MaxInflightChunks   int    `json:"max_inflight_chunks"`
	ChunkSizeKB         int    `json:"chunk_size_kb"`
	AutoCleanupDays     int    `json:"auto_cleanup_days"`
	DBFlushIntervalMS   int    `json:"db_flush_interval_ms"`
	EventEmitIntervalMS int    `json:"event_emit_interval_ms"`
	AckBatchSize        int    `json:"ack_batch_size"`
	AckFlushIntervalMS  int    `json:"ack_flush_interval_ms"`
	ResumeEnabled       bool   `json:"resume_enabled"`
	DiscoveryEnabled    bool   `json:"discovery_enabled"`
	PairingRequired     bool   `json:"pairing_required"`
	PipelineV2Enabled   bool   `json:"pipeline_v2_enabled"`
	CodecV2Enabled      bool   `json:"codec_v2_enabled"`
}

// DefaultSettings returns the documented defaults, seeded with defaultDownloadDir.
func DefaultSettings(defaultDownloadDir string) Settings {
	return Settings{
		DefaultDownloadDir:  defaultDownloadDir,
		MaxParallelFiles:    3,
		MaxInflightChunks:   16,
		ChunkSizeKB:         256,
		AutoCleanupDays:     30,
		DBFlushIntervalMS:   500,
		EventEmitIntervalMS: 250,
		AckBatchSize:        32,
		AckFlushIntervalMS:  50,
		ResumeEnabled:       true,
		DiscoveryEnabled:    true,
		PairingRequired:     true,
		PipelineV2Enabled:   true,
		CodecV2Enabled:      true,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp normalizes every numeric field to its documented range in place. DefaultDownloadDir
// falls back to defaultDownloadDir when empty.
func (s *Settings) Clamp(defaultDownloadDir string) {
	if s.DefaultDownloadDir == "" {
		s.DefaultDownloadDir = defaultDownloadDir
	}
	s.MaxParallelFiles = clampInt(s.MaxParallelFiles, 1, 8)
	s.MaxInflightChunks = clampInt(s.MaxInflightChunks, 1, 64)
	s.ChunkSizeKB = clampInt(s.ChunkSizeKB, 64, 4096)
	s.AutoCleanupDays = clampInt(s.AutoCleanupDays, 1, 365)
	s.DBFlushIntervalMS = clampInt(s.DBFlushIntervalMS, 100, 5000)
	s.EventEmitIntervalMS = clampInt(s.EventEmitIntervalMS, 100, 2000)
	s.AckBatchSize = clampInt(s.AckBatchSize, 1, 512)
	s.AckFlushIntervalMS = clampInt(s.AckFlushIntervalMS, 5, 2000)
}

// ChunkSizeBytes returns ChunkSizeKB converted to bytes.
func (s Settings) ChunkSizeBytes() int64 {
	return int64(s.ChunkSizeKB) * 1024
}
