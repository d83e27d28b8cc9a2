package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	apiURLEnvVar   = "FIELDHOUSE_API_URL"
	wsURLEnvVar    = "FIELDHOUSE_WS_URL"
	folderEnvVar   = "FIELDHOUSE_DATA_FOLDER"
	appNameEnvVar  = "FIELDHOUSE_APP_NAME"
	intervalEnvVar = "FIELDHOUSE_VERIFY_INTERVAL"
)

type EnvVars struct {
	profile *Profile
}

var _ Config = EnvVars{}

func (e EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameEnvVar, "Fieldhouse")
}

func (e EnvVars) GetAPIBaseURL() string {
	fallback := "http://localhost:4000/api"
	if e.profile != nil && e.profile.APIURL != "" {
		fallback = e.profile.APIURL
	}
	return GetEnv(apiURLEnvVar, fallback)
}

func (e EnvVars) GetRealtimeURL() string {
	fallback := "ws://localhost:4000/ws"
	if e.profile != nil && e.profile.RealtimeURL != "" {
		fallback = e.profile.RealtimeURL
	}
	return GetEnv(wsURLEnvVar, fallback)
}

func (e EnvVars) GetDataFolder() string {
	fallback := defaultDataFolder()
	if e.profile != nil && e.profile.DataFolder != "" {
		fallback = e.profile.DataFolder
	}
	return GetEnv(folderEnvVar, fallback)
}

func (e EnvVars) GetVerifyInterval() time.Duration {
	raw := GetEnv(intervalEnvVar, "")
	if raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

func defaultDataFolder() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fieldhouse")
	}
	return "./data"
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
