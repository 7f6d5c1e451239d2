package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration. It is constructed once at startup
// and passed by reference to every component; nothing mutates it afterwards.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Firebase FirebaseConfig `yaml:"firebase" mapstructure:"firebase"`
	Neo4j    Neo4jConfig    `yaml:"neo4j" mapstructure:"neo4j"`
	Audit    AuditConfig    `yaml:"audit" mapstructure:"audit"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	LoginRate      float64       `yaml:"login_rate" mapstructure:"login_rate"`   // login requests per second per client IP
	LoginBurst     int           `yaml:"login_burst" mapstructure:"login_burst"` // burst allowance on top of login_rate
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

type FirebaseConfig struct {
	APIKey       string `yaml:"api_key" mapstructure:"api_key"`
	ProjectID    string `yaml:"project_id" mapstructure:"project_id"`
	ServiceToken string `yaml:"service_token" mapstructure:"service_token"` // bearer for admin endpoints (custom claims)
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

type AuditConfig struct {
	PostgresDSN string        `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"` // per audit write, on a detached context
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns configuration defaults. Credentials have no defaults;
// they must come from the environment or config file.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			LoginRate:      5,
			LoginBurst:     10,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
		Neo4j: Neo4jConfig{
			Database: "neo4j",
		},
		Audit: AuditConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file plus environment
// variables. Env vars win over file values; the .env file (if any) has
// already been loaded into the environment by the EnvLoader.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := Default()
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.allowed_origins", cfg.HTTP.AllowedOrigins)
	v.SetDefault("http.login_rate", cfg.HTTP.LoginRate)
	v.SetDefault("http.login_burst", cfg.HTTP.LoginBurst)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("audit.timeout", cfg.Audit.Timeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.json", cfg.Log.JSON)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("easyfix")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.easyfix")
	}

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; env vars can carry everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides maps the flat environment variables onto the config.
// These are the same names the .env file carries.
func applyEnvOverrides(cfg *Config) {
	set := func(dst *string, key string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	set(&cfg.Firebase.APIKey, "FIREBASE_API_KEY")
	set(&cfg.Firebase.ProjectID, "FIREBASE_PROJECT_ID")
	set(&cfg.Firebase.ServiceToken, "FIREBASE_SERVICE_TOKEN")
	set(&cfg.Neo4j.URI, "NEO4J_URI")
	set(&cfg.Neo4j.User, "NEO4J_USER")
	set(&cfg.Neo4j.Password, "NEO4J_PASSWORD")
	set(&cfg.Neo4j.Database, "NEO4J_DATABASE")
	set(&cfg.Audit.PostgresDSN, "AUDIT_POSTGRES_DSN")
	set(&cfg.HTTP.Addr, "HTTP_ADDR")
	set(&cfg.Log.Level, "LOG_LEVEL")

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		var parsed []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				parsed = append(parsed, o)
			}
		}
		if len(parsed) > 0 {
			cfg.HTTP.AllowedOrigins = parsed
		}
	}
}

// Validate checks that every required setting is present and names each
// missing one, so a misconfigured deployment fails fast with a usable message.
func (c *Config) Validate() error {
	var missing []string

	if c.Firebase.APIKey == "" {
		missing = append(missing, "FIREBASE_API_KEY")
	}
	if c.Firebase.ProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	if c.Neo4j.URI == "" {
		missing = append(missing, "NEO4J_URI")
	}
	if c.Neo4j.User == "" {
		missing = append(missing, "NEO4J_USER")
	}
	if c.Neo4j.Password == "" {
		missing = append(missing, "NEO4J_PASSWORD")
	}
	if c.Audit.PostgresDSN == "" {
		missing = append(missing, "AUDIT_POSTGRES_DSN")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// WriteSkeleton writes a commented YAML config skeleton to path,
// refusing to overwrite an existing file.
func WriteSkeleton(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	header := "# easyfix configuration.\n" +
		"# Credentials (Firebase key, Neo4j password, audit DSN) belong in .env,\n" +
		"# not in this file.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0644)
}
