package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func validConfig() types.AuditConfig {
	cfg := Default()
	cfg.SeedURL = "https://example.com/"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*types.AuditConfig)
		valid  bool
	}{
		{"defaults with seed", func(c *types.AuditConfig) {}, true},
		{"missing seed", func(c *types.AuditConfig) { c.SeedURL = "" }, false},
		{"ftp seed", func(c *types.AuditConfig) { c.SeedURL = "ftp://example.com/" }, false},
		{"mailto seed", func(c *types.AuditConfig) { c.SeedURL = "mailto:someone@example.com" }, false},
		{"zero pages", func(c *types.AuditConfig) { c.MaxPages = 0 }, false},
		{"negative depth", func(c *types.AuditConfig) { c.MaxDepth = -1 }, false},
		{"zero depth", func(c *types.AuditConfig) { c.MaxDepth = 0 }, true},
		{"zero rate", func(c *types.AuditConfig) { c.RequestsPerSecond = 0 }, false},
		{"zero timeout", func(c *types.AuditConfig) { c.RequestTimeout = 0 }, false},
		{"empty agent", func(c *types.AuditConfig) { c.UserAgent = "" }, false},
		{"zero workers", func(c *types.AuditConfig) { c.Workers = 0 }, false},
		{"too many workers", func(c *types.AuditConfig) { c.Workers = 1000 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := Validate(cfg)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.yaml")
	content := "seed_url: https://example.org/\nmax_pages: 42\nrequest_timeout: 3s\nworkers: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.Set("config", path)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/", cfg.SeedURL)
	assert.Equal(t, 42, cfg.MaxPages)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, Default().MaxRedirects, cfg.MaxRedirects)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEOAUDIT_SEED_URL", "http://env.example.com/")
	t.Setenv("SEOAUDIT_MAX_DEPTH", "2")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com/", cfg.SeedURL)
	assert.Equal(t, 2, cfg.MaxDepth)
}

func TestLoadRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set("seed_url", "not a url")

	_, err := Load(v)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
