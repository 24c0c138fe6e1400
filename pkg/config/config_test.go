package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithPath_Defaults(t *testing.T) {
	cfg, err := LoadWithPath(writeEnvFile(t, "APP_NAME=portal-test\n"))
	require.NoError(t, err)

	assert.Equal(t, "portal-test", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 2, cfg.Portal.GalleryReleaseDelayDays)
	assert.Equal(t, 90, cfg.Portal.GalleryVisibilityWindowDays)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Kafka.NotifyTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadWithPath_Overrides(t *testing.T) {
	cfg, err := LoadWithPath(writeEnvFile(t, `
STORE_DRIVER=Mongo
STORE_TIMEOUT=2s
KAFKA_BROKERS=k1:9092, k2:9092 ,
UPLOADS_PUBLIC_BASE_URL=https://cdn.example.com/files/
`))
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://cdn.example.com/files", cfg.Uploads.PublicBaseURL)
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Name: "portal", Environment: "development"},
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Driver: StoreDriverMemory, Timeout: time.Second},
		JWT:    JWTConfig{Secret: "s3cret"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "empty secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: true},
		{
			name: "default secret in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.JWT.Secret = defaultJWTSecret
			},
			wantErr: true,
		},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: true},
		{name: "zero store timeout", mutate: func(c *Config) { c.Store.Timeout = 0 }, wantErr: true},
		{name: "negative gallery days", mutate: func(c *Config) { c.Portal.GalleryReleaseDelayDays = -1 }, wantErr: true},
		{
			name: "kafka enabled without brokers",
			mutate: func(c *Config) {
				c.Kafka.Enabled = true
				c.Kafka.Brokers = nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "portal", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=portal sslmode=disable", d.DSN())
}
