package storage

import (
	"encoding/json"
	"hash/crc32"

	"github.com/pkg/errors"

	"air-monitor/internal/models"
)

// SettingsVersion is bumped whenever models.Settings changes shape
const SettingsVersion = 1

var (
	ErrCorrupt        = errors.New("stored settings failed integrity check")
	ErrVersion        = errors.New("stored settings version mismatch")
	ErrSettingsAbsent = errors.New("no stored settings")
)

// envelope wraps the settings body with a checksum over its exact bytes
type envelope struct {
	Version  int             `json:"version"`
	Checksum uint32          `json:"crc32"`
	Settings json.RawMessage `json:"settings"`
}

// EncodeSettings serializes settings inside a checksummed envelope
func EncodeSettings(s models.Settings) ([]byte, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal settings")
	}
	return json.Marshal(envelope{
		Version:  SettingsVersion,
		Checksum: crc32.ChecksumIEEE(body),
		Settings: body,
	})
}

// DecodeSettings verifies an envelope and returns its settings
func DecodeSettings(data []byte) (models.Settings, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.Settings{}, errors.Wrapf(ErrCorrupt, "envelope: %v", err)
	}
	if env.Version != SettingsVersion {
		return models.Settings{}, errors.Wrapf(ErrVersion, "got %d, want %d", env.Version, SettingsVersion)
	}
	if sum := crc32.ChecksumIEEE(env.Settings); sum != env.Checksum {
		return models.Settings{}, errors.Wrapf(ErrCorrupt, "crc32 %08x, stored %08x", sum, env.Checksum)
	}

	var s models.Settings
	if err := json.Unmarshal(env.Settings, &s); err != nil {
		return models.Settings{}, errors.Wrapf(ErrCorrupt, "settings body: %v", err)
	}
	return s, nil
}
