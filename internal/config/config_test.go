package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_HOST", "REMATCH_WORKERS", "PROMO_TIMEZONE", "HTTP_ADDR", "DB_PASSWORD", "AUTO_MIGRATE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, 4, cfg.RematchWorkers)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.AutoMigrate)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", loc.String())
	assert.NotContains(t, cfg.DB.Redacted(), "password")
	assert.Contains(t, cfg.DB.ConnString(), "password=orderops")
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	// t.Setenv restaure les valeurs d'origine; Unsetenv laisse godotenv les définir
	t.Setenv("DB_HOST", "")
	t.Setenv("REMATCH_WORKERS", "")
	os.Unsetenv("DB_HOST")
	os.Unsetenv("REMATCH_WORKERS")
	t.Setenv("DB_NAME", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_HOST=db.internal\nREMATCH_WORKERS=8\nDB_NAME=from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 8, cfg.RematchWorkers)
	assert.Equal(t, "from-env", cfg.DB.Name, "process environment wins over the file")
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("REMATCH_WORKERS", "zero")
	_, err := Load(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)

	t.Setenv("REMATCH_WORKERS", "2")
	t.Setenv("PROMO_TIMEZONE", "Mars/Olympus")
	_, err = Load(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)

	t.Setenv("PROMO_TIMEZONE", "Asia/Seoul")
	t.Setenv("AUTO_MIGRATE", "maybe")
	_, err = Load(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}

func TestSiteDecorations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte("coupang:\n  - '\\(무료배송\\)'\n  - '로켓배송'\n"), 0o600))

	cfg := &Config{SiteDecorationsFile: path}
	patterns, err := cfg.SiteDecorations()
	require.NoError(t, err)
	assert.Equal(t, []string{`\(무료배송\)`, "로켓배송"}, patterns["coupang"])

	none, err := (&Config{}).SiteDecorations()
	require.NoError(t, err)
	assert.Nil(t, none)
}
