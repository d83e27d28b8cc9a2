package config

import "time"

type Config interface {
	EnvConfig
	ClientConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetDataFolder() string
}

type ClientConfig interface {
	GetAPIBaseURL() string
	GetRealtimeURL() string
	GetVerifyInterval() time.Duration
}

type mainConfig struct {
	EnvVars
}

// New builds the configuration stack: process env first (a .env file is
// loaded into it if present), then the optional YAML profile, then built-in
// defaults.
func New() (Config, error) {
	profile, err := loadProfile()
	if err != nil {
		return nil, err
	}
	return mainConfig{EnvVars{profile: profile}}, nil
}
