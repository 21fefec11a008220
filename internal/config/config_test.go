package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "feedbase",
				Password: "secret",
				Name:     "feedbase",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=feedbase password=secret dbname=feedbase sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "",
				Name:     "dbname",
				SSLMode:  "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
		{"port 443", ServerConfig{Host: "0.0.0.0", Port: 443}, "0.0.0.0:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "feedbase",
			User: "feedbase",
		},
		Otp: OtpConfig{
			CodeLength:      6,
			TTL:             10 * time.Minute,
			MaxAttempts:     5,
			RequestsPerHour: 5,
		},
		RateLimiting: RateLimitingConfig{Backend: "postgres"},
		Logging:      LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("invalid server port 70000", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 70000, got nil")
		}
	})

	t.Run("missing database host", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Host = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database host, got nil")
		}
	})

	t.Run("missing database name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Name = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database name, got nil")
		}
	})

	t.Run("missing database user", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.User = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database user, got nil")
		}
	})

	t.Run("invalid rate limiting backend", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.RateLimiting.Backend = "memcached"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid rate limiting backend, got nil")
		}
	})

	t.Run("redis backend missing redis url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.RateLimiting.Backend = "redis"
		cfg.Redis.URL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing redis url, got nil")
		}
	})

	t.Run("redis backend with url passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.RateLimiting.Backend = "redis"
		cfg.Redis.URL = "redis://localhost:6379/0"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for valid redis config: %v", err)
		}
	})

	t.Run("otp code length too short", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Otp.CodeLength = 3
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for code length 3, got nil")
		}
	})

	t.Run("otp code length too long", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Otp.CodeLength = 11
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for code length 11, got nil")
		}
	})

	t.Run("audit enabled without destination", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for audit with no destination, got nil")
		}
	})

	t.Run("audit enabled with file path passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Enabled = true
		cfg.Audit.File.Path = "/var/log/feedbase/audit.log"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for file audit destination: %v", err)
		}
	})

	t.Run("audit enabled with webhook url passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Enabled = true
		cfg.Audit.Webhook.URL = "https://siem.example.com/ingest"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for webhook audit destination: %v", err)
		}
	})

	t.Run("otp retention shorter than cap window", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Jobs.OtpRetention = 30 * time.Minute
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for 30m otp retention, got nil")
		}
	})

	t.Run("otp retention disabled passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Jobs.OtpRetention = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for zero otp retention: %v", err)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid log level, got nil")
		}
	})

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		got := expandEnv("${CONFIG_TEST_SECRET}")
		if got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("expands $VAR syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_VAL", "hello")
		got := expandEnv("$CONFIG_TEST_VAL")
		if got != "hello" {
			t.Errorf("expandEnv() = %q, want %q", got, "hello")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		got := expandEnv("no-vars-here")
		if got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want %q", got, "no-vars-here")
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}")
		if got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load – with config file
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Host != "dbhost" {
		t.Errorf("Database.Host = %q, want dbhost", cfg.Database.Host)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("Database.Name = %q, want testdb", cfg.Database.Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	// Config without most sections; setDefaults() should fill them in.
	const content = `
database:
  host: "localhost"
  name: "feedbase"
  user: "feedbase"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("default Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("default Database.SSLMode = %q, want require", cfg.Database.SSLMode)
	}
	if cfg.Auth.APIKeys.Prefix != "fdb" {
		t.Errorf("default Auth.APIKeys.Prefix = %q, want fdb", cfg.Auth.APIKeys.Prefix)
	}
	if cfg.Auth.APIKeys.Env != "live" {
		t.Errorf("default Auth.APIKeys.Env = %q, want live", cfg.Auth.APIKeys.Env)
	}
	if cfg.Otp.CodeLength != 6 {
		t.Errorf("default Otp.CodeLength = %d, want 6", cfg.Otp.CodeLength)
	}
	if cfg.Otp.TTL != 10*time.Minute {
		t.Errorf("default Otp.TTL = %s, want 10m", cfg.Otp.TTL)
	}
	if cfg.Otp.MaxAttempts != 5 {
		t.Errorf("default Otp.MaxAttempts = %d, want 5", cfg.Otp.MaxAttempts)
	}
	if cfg.Otp.RequestsPerHour != 5 {
		t.Errorf("default Otp.RequestsPerHour = %d, want 5", cfg.Otp.RequestsPerHour)
	}
	if cfg.RateLimiting.Backend != "postgres" {
		t.Errorf("default RateLimiting.Backend = %q, want postgres", cfg.RateLimiting.Backend)
	}
	if cfg.Auth.LegacyPasswordLogin {
		t.Error("default Auth.LegacyPasswordLogin = true, want false")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	t.Setenv("TEST_HMAC_SECRET", "0123456789abcdef0123456789abcdef")
	const content = `
database:
  host: "localhost"
  name: "feedbase"
  user: "feedbase"
  password: "${TEST_DB_PASS}"
auth:
  api_keys:
    hmac_secret: "${TEST_HMAC_SECRET}"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
	if cfg.Auth.APIKeys.HMACSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("Auth.APIKeys.HMACSecret = %q, want expanded secret", cfg.Auth.APIKeys.HMACSecret)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_NonexistentExplicitPath(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		// An explicitly given but missing file surfaces as a read error;
		// validation failure on pure defaults is also acceptable.
		if !strings.Contains(err.Error(), "error reading config file") &&
			!strings.Contains(err.Error(), "invalid configuration") {
			t.Fatalf("Load() unexpected error kind: %v", err)
		}
	}
}
