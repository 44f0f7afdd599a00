package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	return configPath
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
  output_dir: ./original-results
  show_stack_traces: false
report:
  slow_test_threshold: 10
  max_slow_tests_to_show: 5
pipeline:
  create_bug: false
  bug:
    concurrency: 1
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "./original-results", cfg.Global.OutputDir)
				assert.InDelta(t, 10.0, cfg.Report.SlowTestThreshold, 1e-9)
				assert.Equal(t, 5, cfg.Report.MaxSlowTestsToShow)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"REPORTOOR_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "boolean override - show_stack_traces",
			envVars: map[string]string{
				"REPORTOOR_GLOBAL_SHOW_STACK_TRACES": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Global.ShowStackTraces)
			},
		},
		{
			name: "float override - slow_test_threshold",
			envVars: map[string]string{
				"REPORTOOR_REPORT_SLOW_TEST_THRESHOLD": "2.5",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2500*time.Millisecond, cfg.Report.SlowThreshold())
			},
		},
		{
			name: "nested field override - pipeline.bug.concurrency",
			envVars: map[string]string{
				"REPORTOOR_PIPELINE_BUG_CONCURRENCY": "4",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 4, cfg.Pipeline.Bug.Concurrency)
			},
		},
		{
			name: "key absent from file - pipeline.pr.base_branch",
			envVars: map[string]string{
				"REPORTOOR_PIPELINE_PR_BASE_BRANCH": "develop",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "develop", cfg.Pipeline.PR.BaseBranch)
			},
		},
		{
			name: "multiple overrides",
			envVars: map[string]string{
				"REPORTOOR_GLOBAL_LOG_LEVEL":      "trace",
				"REPORTOOR_GLOBAL_OUTPUT_DIR":     "/results/multi",
				"REPORTOOR_PIPELINE_CREATE_BUG":   "true",
				"REPORTOOR_PIPELINE_GENERATE_FIX": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "trace", cfg.Global.LogLevel)
				assert.Equal(t, "/results/multi", cfg.Global.OutputDir)
				assert.True(t, cfg.Pipeline.CreateBug)
				assert.True(t, cfg.Pipeline.GenerateFix)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, "global: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultOutputDir, cfg.Global.OutputDir)
	assert.InDelta(t, DefaultSlowTestThreshold, cfg.Report.SlowTestThreshold, 1e-9)
	assert.Equal(t, DefaultMaxSlowTests, cfg.Report.MaxSlowTestsToShow)
	assert.Equal(t, DefaultBaseBranch, cfg.Pipeline.PR.BaseBranch)
	assert.True(t, cfg.Pipeline.PR.Draft)
	assert.Equal(t, 1, cfg.Pipeline.Bug.Concurrency)
	assert.Equal(t, 15, cfg.Pipeline.Fix.StackLines)
	assert.Zero(t, cfg.Pipeline.Fix.MaxSourceBytes)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultUploadPrefix, cfg.Upload.S3.Prefix)
	assert.False(t, cfg.Pipeline.GenerateFix)
	assert.Nil(t, cfg.Providers.AI)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("REPORTOOR_GLOBAL_OUTPUT_DIR", "/tmp/env-only")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-only", cfg.Global.OutputDir)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: yaml: content:"))
	require.Error(t, err)
}

func TestLoad_FieldValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown log level",
			content: "global:\n  log_level: loud\n",
			errMsg:  "LogLevel",
		},
		{
			name:    "negative threshold",
			content: "report:\n  slow_test_threshold: -1\n",
			errMsg:  "SlowTestThreshold",
		},
		{
			name:    "zero slow tests",
			content: "report:\n  max_slow_tests_to_show: 0\n",
			errMsg:  "MaxSlowTestsToShow",
		},
		{
			name:    "zero bug concurrency",
			content: "pipeline:\n  bug:\n    concurrency: 0\n",
			errMsg:  "Concurrency",
		},
		{
			name:    "s3 enabled without bucket",
			content: "upload:\n  s3:\n    enabled: true\n",
			errMsg:  "s3.bucket is required",
		},
		{
			name:    "s3 half credentials",
			content: "upload:\n  s3:\n    enabled: true\n    bucket: b\n    access_key_id: x\n",
			errMsg:  "must be set together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_Providers(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, `
providers:
  ai:
    kind: openai
    api_key: ${TEST_OPENAI_KEY}
    model: gpt-4o
    timeout: 30s
  bug_tracker:
    kind: github
    token: ghp_x
    owner: acme
    repo: web
  database:
    kind: postgres
    host: db.local
    database: results
  notification:
    kind: webhook
    url: https://hooks.example.com/run
    headers:
      X-Team: qa
`))
	require.NoError(t, err)

	ai, ok := cfg.Providers.AI.Typed().(*OpenAISettings)
	require.True(t, ok)
	assert.Equal(t, "sk-test", ai.APIKey)
	assert.Equal(t, "gpt-4o", ai.Model)
	assert.Equal(t, 30*time.Second, ai.Timeout)

	gh, ok := cfg.Providers.BugTracker.Typed().(*GitHubSettings)
	require.True(t, ok)
	assert.Equal(t, "acme", gh.Owner)

	pg, ok := cfg.Providers.Database.Typed().(*PostgresSettings)
	require.True(t, ok)
	assert.Equal(t, "host=db.local port=5432 user= password= dbname=results sslmode=disable", pg.DSN())

	hook, ok := cfg.Providers.Notification.Typed().(*WebhookSettings)
	require.True(t, ok)
	assert.Equal(t, "https://hooks.example.com/run", hook.URL)
	assert.Len(t, hook.Headers, 1)

	assert.Nil(t, cfg.Providers.PR.Typed())
}

func TestLoad_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown kind",
			content: "providers:\n  ai:\n    kind: llama\n    api_key: x\n",
			errMsg:  `unknown kind "llama"`,
		},
		{
			name:    "kind from another slot",
			content: "providers:\n  database:\n    kind: github\n",
			errMsg:  "supported: postgres, sqlite",
		},
		{
			name:    "missing kind",
			content: "providers:\n  ai:\n    api_key: x\n",
			errMsg:  "Kind",
		},
		{
			name:    "unknown settings key",
			content: "providers:\n  database:\n    kind: sqlite\n    path: r.db\n    pool: 3\n",
			errMsg:  "pool",
		},
		{
			name:    "missing required setting",
			content: "providers:\n  notification:\n    kind: smtp\n    host: mail\n    port: 25\n",
			errMsg:  "From",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
