package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TOKEN_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("DB_URL", "postgres://localhost/saasbooks_test")
	t.Setenv("TENANT_HOST_SUFFIX", "saasbooks.test")
	t.Setenv("AUDIT_SENSITIVE_READS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/saasbooks_test", cfg.Database.URL)
	assert.Equal(t, "saasbooks.test", cfg.Tenant.HostSuffix)
	assert.True(t, cfg.Audit.SensitiveReads)

	// Defaults fill what the environment leaves out.
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestDeadline)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			App:      AppConfig{Env: "development"},
			Token:    TokenConfig{SigningKey: "0123456789abcdef0123456789abcdef"},
			Database: DatabaseConfig{URL: "postgres://localhost/db"},
		}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Token.SigningKey = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Database.URL = ""
	assert.Error(t, c.Validate())

	// Short keys pass in development but not in production.
	c = base()
	c.Token.SigningKey = "short"
	assert.NoError(t, c.Validate())
	c.App.Env = "production"
	assert.Error(t, c.Validate())
}

func TestStoreSwapIsAtomic(t *testing.T) {
	first := &Config{App: AppConfig{Name: "one"}}
	second := &Config{App: AppConfig{Name: "two"}}

	s := NewStore(first)
	assert.Same(t, first, s.Current())

	held := s.Current()
	s.Swap(second)
	assert.Same(t, second, s.Current())
	// A snapshot taken before the swap stays valid.
	assert.Equal(t, "one", held.App.Name)
}
