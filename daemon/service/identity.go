package service

import (
	"encoding/json"
	"os"
	"os/user"
	"path/filepath"

	"github.com/airdock-app/airdock/internal/crypto"
)

// identity is the local device's self-description, announced over discovery and presented in
// HELLO/AUTH_OK. It is generated once and cached on disk so the device keeps a stable identity
// across restarts.
type identity struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name"`
}

func loadOrCreateIdentity(dataDirectory string) (identity, error) {
	path := filepath.Join(dataDirectory, "identity.json")

	if data, err := os.ReadFile(path); err == nil {
		var id identity
		if jsonErr := json.Unmarshal(data, &id); jsonErr == nil && id.DeviceID != "" {
			return id, nil
		}
	}

	deviceID, err := crypto.RandomHex(16)
	if err != nil {
		return identity{}, err
	}
	id := identity{DeviceID: deviceID, DisplayName: localDisplayName()}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return identity{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return identity{}, err
	}
	return id, nil
}

func localDisplayName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username + "'s device"
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "Airdock device"
}
