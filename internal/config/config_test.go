package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  http_port: 9090
mysql:
  host: db.internal
  port: 3306
  auto_migrate: true
redis:
  unread_ttl: 2m
bus:
  driver: nats
catalog:
  static_names:
    "101": "Blue Mug"
messaging:
  max_attachments: 4
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.True(t, cfg.MySQL.AutoMigrate)
	assert.Equal(t, "utf8mb4", cfg.MySQL.Charset)
	assert.Equal(t, 2*time.Minute, cfg.Redis.UnreadTTL)
	assert.Equal(t, "nats", cfg.Bus.Driver)
	assert.Equal(t, 8, cfg.Bus.PublishWorkers)
	assert.Equal(t, "Blue Mug", cfg.Catalog.StaticNames["101"])
	assert.Equal(t, 4, cfg.Messaging.MaxAttachments)
	assert.Equal(t, 50, cfg.Messaging.DefaultPageSize)
	assert.Equal(t, []string{"seller", "buyer"}, cfg.Auth.AllowedRoles)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SELLERCHAT_MYSQL_HOST", "override.internal")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "override.internal", cfg.MySQL.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
