// Package config resolves wallholla settings from defaults, an optional
// config file and WALLHOLLA_* environment variables, in increasing order
// of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings holds the paths and layout conventions the commands share.
type Settings struct {
	// BasePath is the root of the image datasets; each dataset lives in
	// <BasePath>/<dataset>/{train,validation}.
	BasePath string `mapstructure:"base_path"`
	// PretrainedPath is where the cached feature archives go.
	PretrainedPath string `mapstructure:"pretrained_path"`
	// DataFormat is the image layout, channels_last or channels_first.
	DataFormat string `mapstructure:"data_format"`
}

// Load resolves settings from defaults and the environment.
func Load() (*Settings, error) {
	return LoadFrom("")
}

// LoadFrom additionally reads the given config file; environment
// variables still win.
func LoadFrom(file string) (*Settings, error) {
	v := viper.New()
	v.SetDefault("base_path", "./data")
	v.SetDefault("pretrained_path", "./pretrained")
	v.SetDefault("data_format", "channels_last")

	v.SetEnvPrefix("WALLHOLLA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if s.DataFormat != "channels_last" && s.DataFormat != "channels_first" {
		return nil, fmt.Errorf("unknown data format %q: needs to be channels_last or channels_first", s.DataFormat)
	}
	return &s, nil
}

// Folders returns the train and validation directories for a dataset.
func (s *Settings) Folders(dataset string) (trainDir, validDir string) {
	return filepath.Join(s.BasePath, dataset, "train"),
		filepath.Join(s.BasePath, dataset, "validation")
}
