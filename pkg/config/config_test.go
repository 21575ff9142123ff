package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_DRIVER", "jwt")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.PresenceTTL)
	assert.True(t, cfg.WSJoinMarksRead)
	assert.Equal(t, []string{"en", "fr", "ar"}, cfg.SupportedLanguages)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadRejectsIncompleteDrivers(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_DRIVER", "jwt")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"en", "sw"}, splitList(" en, ,sw "))
	assert.Nil(t, splitList(""))
}

func TestParseSeedAccounts(t *testing.T) {
	seeds, err := parseSeedAccounts("buyer-1:buyer, mod-1:Moderator")
	require.NoError(t, err)
	assert.Equal(t, []SeedAccount{
		{ID: "buyer-1", AccountType: "buyer"},
		{ID: "mod-1", AccountType: "moderator"},
	}, seeds)

	_, err = parseSeedAccounts("buyer-1")
	assert.Error(t, err)

	_, err = parseSeedAccounts("buyer-1:")
	assert.Error(t, err)
}
