package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = "gitviz"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, e.g. GITVIZ_API_BASE_URL.
const envPrefix = "GITVIZ"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Load reads configuration from defaults, file and env vars.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, gitviz.yaml is searched in CWD and $HOME/.config/gitviz.
// Missing config file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/gitviz")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults registers every key. AutomaticEnv only resolves keys viper
// already knows about, so session.secret gets an empty default.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultServerPort)

	v.SetDefault("api.base_url", DefaultAPIBaseURL)
	v.SetDefault("api.timeout", DefaultAPITimeout)

	v.SetDefault("session.renewal_skew", DefaultRenewalSkew)
	v.SetDefault("session.refresh_timeout", DefaultRefreshTimeout)
	v.SetDefault("session.db_path", DefaultSessionDBPath)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.max_age", DefaultSessionMaxAge)
	v.SetDefault("session.cookie_secure", false)

	v.SetDefault("log.level", DefaultLogLevel)
}
