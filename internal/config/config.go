package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port               string            `yaml:"port"`
	Env                string            `yaml:"env"`
	AllowedOrigins     []string          `yaml:"allowed_origins"`
	Logs               LogConfig         `yaml:"logs"`
	Supabase           SupabaseConfig    `yaml:"supabase"`
	DatabaseURL        string            `yaml:"database_url"`
	RedisURL           string            `yaml:"redis_url"`
	Email              EmailConfig       `yaml:"email"`
	Language           string            `yaml:"default_language"`
	SessionIdleTimeout time.Duration     `yaml:"session_idle_timeout"`
	RuntimeEnv         map[string]string `yaml:"runtime_env"`
}

type LogConfig struct {
	Style string `yaml:"style"`
	Level string `yaml:"level"`
}

// SupabaseConfig only carries the server-side secrets. The public URL and
// anon key are resolved lazily through the Resolver by the client factory.
type SupabaseConfig struct {
	ServiceRoleKey string `yaml:"service_role_key"`
	JWTSecret      string `yaml:"jwt_secret"`
	RedirectURL    string `yaml:"redirect_url"`
}

type EmailConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

// LoadConfig reads the environment (and .env through godotenv autoload).
// A non-empty path names a YAML file used as the base layer; environment
// variables always win over it.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvVars()
	return cfg, nil
}

// Resolver returns the lookup chain for public frontend values.
func (c *Config) Resolver() *Resolver {
	return NewResolver(c.RuntimeEnv)
}

// Development reports whether debug affordances should be exposed.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func (c *Config) applyDefaults() {
	c.Port = "8080"
	c.Env = "production"
	c.Logs.Style = "json"
	c.Logs.Level = "info"
	c.Email.RatePerMinute = 10
	c.Email.Burst = 5
	c.Language = "ar"
	c.SessionIdleTimeout = 30 * time.Minute
}

func (c *Config) applyEnvVars() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	// NODE_ENV is what the frontend tooling sets; APP_ENV takes precedence
	if v := os.Getenv("NODE_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("LOG_STYLE"); v != "" {
		c.Logs.Style = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logs.Level = strings.ToLower(v)
	}

	if v := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		c.Supabase.ServiceRoleKey = v
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		c.Supabase.JWTSecret = v
	}
	if v := os.Getenv("NEXT_PUBLIC_DEV_SUPABASE_REDIRECT_URL"); v != "" {
		c.Supabase.RedirectURL = v
	}
	if v := os.Getenv("SUPABASE_REDIRECT_URL"); v != "" {
		c.Supabase.RedirectURL = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}

	if v := os.Getenv("EMAIL_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Email.RatePerMinute = n
		}
	}
	if v := os.Getenv("EMAIL_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Email.Burst = n
		}
	}
	if v := os.Getenv("SESSION_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.SessionIdleTimeout = d
		}
	}
	if v := os.Getenv("DEFAULT_LANGUAGE"); v != "" {
		c.Language = strings.ToLower(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
