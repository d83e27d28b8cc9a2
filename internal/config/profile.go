package config

import (
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const profileEnvVar = "FIELDHOUSE_CONFIG"

// Profile is the optional YAML configuration file
// (~/.config/fieldhouse/config.yaml, or FIELDHOUSE_CONFIG).
type Profile struct {
	APIURL      string `yaml:"api_url" validate:"omitempty,url"`
	RealtimeURL string `yaml:"ws_url" validate:"omitempty,url"`
	DataFolder  string `yaml:"data_folder"`
}

var profileValidate = validator.New(validator.WithRequiredStructEnabled())

// loadProfile pulls a .env file into the process environment (best effort)
// and parses the YAML profile if one exists. A missing profile is not an
// error; a malformed or invalid one is.
func loadProfile() (*Profile, error) {
	_ = godotenv.Load()

	path := os.Getenv(profileEnvVar)
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, nil
		}
		path = filepath.Join(dir, "fieldhouse", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[config.loadProfile] os.ReadFile")
	}

	profile := &Profile{}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, errors.Wrapf(err, "[config.loadProfile] parsing %s", path)
	}
	if err := profileValidate.Struct(profile); err != nil {
		return nil, errors.Wrapf(err, "[config.loadProfile] validating %s", path)
	}
	return profile, nil
}
