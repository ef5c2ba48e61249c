package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoadGlobalConfig loads machine-wide configuration from
// ~/.codrag/config.yml. Returns default values if the file doesn't
// exist (not an error). Environment variables override file values
// (CODRAG_* prefix).
func LoadGlobalConfig() (*GlobalConfig, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	codragDir := filepath.Join(home, ".codrag")

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(codragDir)

	v.SetEnvPrefix("CODRAG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindGlobalEnvVars(v)

	setGlobalDefaults(v, codragDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &GlobalConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func bindGlobalEnvVars(v *viper.Viper) {
	v.BindEnv("data_dir")
	v.BindEnv("registry.db_path")
	v.BindEnv("embedding.model")
	v.BindEnv("embedding.dimensions")
	v.BindEnv("log_level")
}

func setGlobalDefaults(v *viper.Viper, codragDir string) {
	v.SetDefault("data_dir", codragDir)
	v.SetDefault("registry.db_path", filepath.Join(codragDir, "registry.db"))
	v.SetDefault("embedding.model", "fake-embed")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("log_level", "info")
}
