package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ConfigTTL)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "compenso.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
repository:
  driver: postgres
  name: clinic
cache:
  type: memory
worker:
  enabled: true
  tenant_ids: [clinic-1, clinic-2]
`), 0o600))

	t.Setenv("COMPENSO_DB_NAME", "override")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "override", cfg.Repository.Name)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, []string{"clinic-1", "clinic-2"}, cfg.Worker.TenantIDs)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMPENSO_PORT=7070\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("COMPENSO_PORT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COMPENSO_DB_DRIVER", "oracle")

	_, err := Load("")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUsage(t *testing.T) {
	assert.Contains(t, Usage(), "COMPENSO_DB_DRIVER")
}
