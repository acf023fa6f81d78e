package service

import (
	"os"

	"github.com/airdock-app/airdock/daemon/config"
	"github.com/airdock-app/airdock/internal/wire"
)

// SettingsDelta carries only the fields an update_settings call wants to change; nil pointers
// leave the current value untouched.
type SettingsDelta struct {
	DefaultDownloadDir  *string
	MaxParallelFiles    *int
	MaxInflightChunks   *int
	ChunkSizeKB         *int
	AutoCleanupDays     *int
	DBFlushIntervalMS   *int
	EventEmitIntervalMS *int
	AckBatchSize        *int
	AckFlushIntervalMS  *int
	ResumeEnabled       *bool
	DiscoveryEnabled    *bool
	PairingRequired     *bool
	PipelineV2Enabled   *bool
	CodecV2Enabled      *bool
}

// GetSettings returns a clone of the current settings.
func (s *Service) GetSettings() config.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

func applySettingsDelta(current config.Settings, delta SettingsDelta) config.Settings {
	next := current
	if delta.DefaultDownloadDir != nil {
		next.DefaultDownloadDir = *delta.DefaultDownloadDir
	}
	if delta.MaxParallelFiles != nil {
		next.MaxParallelFiles = *delta.MaxParallelFiles
	}
	if delta.MaxInflightChunks != nil {
		next.MaxInflightChunks = *delta.MaxInflightChunks
	}
	if delta.ChunkSizeKB != nil {
		next.ChunkSizeKB = *delta.ChunkSizeKB
	}
	if delta.AutoCleanupDays != nil {
		next.AutoCleanupDays = *delta.AutoCleanupDays
	}
	if delta.DBFlushIntervalMS != nil {
		next.DBFlushIntervalMS = *delta.DBFlushIntervalMS
	}
	if delta.EventEmitIntervalMS != nil {
		next.EventEmitIntervalMS = *delta.EventEmitIntervalMS
	}
	if delta.AckBatchSize != nil {
		next.AckBatchSize = *delta.AckBatchSize
	}
	if delta.AckFlushIntervalMS != nil {
		next.AckFlushIntervalMS = *delta.AckFlushIntervalMS
	}
	if delta.ResumeEnabled != nil {
		next.ResumeEnabled = *delta.ResumeEnabled
	}
	if delta.DiscoveryEnabled != nil {
		next.DiscoveryEnabled = *delta.DiscoveryEnabled
	}
	if delta.PairingRequired != nil {
		next.PairingRequired = *delta.PairingRequired
	}
	if delta.PipelineV2Enabled != nil {
		next.PipelineV2Enabled = *delta.PipelineV2Enabled
	}
	if delta.CodecV2Enabled != nil {
		next.CodecV2Enabled = *delta.CodecV2Enabled
	}
	return next
}

// UpdateSettings merges delta onto the current settings, clamps numeric ranges, validates the
// download directory, persists, and returns the normalized result.
func (s *Service) UpdateSettings(delta SettingsDelta) (config.Settings, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	next := applySettingsDelta(s.settings, delta)
	next.Clamp(s.cfg.DownloadsDir)

	if delta.DefaultDownloadDir != nil {
		if info, err := os.Stat(next.DefaultDownloadDir); err != nil || !info.IsDir() {
			return config.Settings{}, wire.NewError(wire.ErrSettingDownloadDirInvalid, "default_download_dir does not exist or is not a directory")
		}
	}

	if err := s.st.SaveSettings(next); err != nil {
		return config.Settings{}, err
	}
	s.settings = next
	return next, nil
}
