// Package config loads runtime configuration from an optional a11yd.yaml
// file plus A11YD_ environment overrides, with development defaults baked in.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups per-module settings the way the modules consume them.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Auditor  AuditorConfig  `mapstructure:"auditor"`
	Store    StoreConfig    `mapstructure:"store"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	DevMode       bool   `mapstructure:"dev_mode"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	MaxContexts       int64         `mapstructure:"max_contexts"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	DOMReadyTimeout   time.Duration `mapstructure:"dom_ready_timeout"`
	NetworkQuiet      time.Duration `mapstructure:"network_quiet"`
}

type AuditorConfig struct {
	// ScriptPath points at a local copy of axe.min.js injected into pages.
	ScriptPath  string   `mapstructure:"script_path"`
	DefaultTags []string `mapstructure:"default_tags"`
}

type StoreConfig struct {
	// Path is the sqlite database file; ":memory:" is accepted for tests.
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogFile    string `mapstructure:"log_file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.allowed_origin", "*")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.max_contexts", 4)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.dom_ready_timeout", 15*time.Second)
	v.SetDefault("browser.network_quiet", 2*time.Second)

	v.SetDefault("auditor.script_path", "assets/axe.min.js")
	v.SetDefault("auditor.default_tags", []string{"wcag2a", "wcag2aa", "wcag21aa", "best-practice"})

	v.SetDefault("store.path", "a11yd.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
}

// Load reads configuration from path (optional) and the environment.
// Env keys follow A11YD_SECTION_KEY, e.g. A11YD_AUTH_JWT_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("A11YD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("a11yd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/a11yd")
		if err := v.ReadInConfig(); err != nil {
			// Missing file is fine; defaults + env carry the configuration.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in development configuration without touching the
// filesystem or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
