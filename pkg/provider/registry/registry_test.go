package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	return cfg
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestBuild_Empty(t *testing.T) {
	cfg := loadConfig(t, "global: {}\n")

	set, err := Build(context.Background(), testLogger(), &cfg.Providers)
	require.NoError(t, err)

	assert.Nil(t, set.AI)
	assert.Nil(t, set.BugTracker)
	assert.Nil(t, set.PR)
	assert.Nil(t, set.Database)
	assert.Nil(t, set.Notification)
	assert.NoError(t, set.Close())
}

func TestBuild_AllProviders(t *testing.T) {
	cfg := loadConfig(t, `
providers:
  ai:
    kind: openai
    api_key: sk-test
  bug_tracker:
    kind: github
    token: t
    owner: acme
    repo: web
  pr:
    kind: github
    token: t
    owner: acme
    repo: web
  database:
    kind: sqlite
    path: ":memory:"
  notification:
    kind: smtp
    host: mail.example.com
    port: 25
    from: ci@example.com
`)

	set, err := Build(context.Background(), testLogger(), &cfg.Providers)
	require.NoError(t, err)

	t.Cleanup(func() { _ = set.Close() })

	assert.NotNil(t, set.AI)
	assert.NotNil(t, set.BugTracker)
	assert.NotNil(t, set.PR)
	assert.NotNil(t, set.Database)
	assert.NotNil(t, set.Notification)
}

func TestBuild_DatabaseStartFailure(t *testing.T) {
	cfg := loadConfig(t, `
providers:
  database:
    kind: sqlite
    path: /nonexistent-dir/sub/results.db
  notification:
    kind: webhook
    url: https://hooks.example.com/x
`)

	set, err := Build(context.Background(), testLogger(), &cfg.Providers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.database")

	assert.Nil(t, set.Database)
	assert.NotNil(t, set.Notification)
	assert.NoError(t, set.Close())
}
