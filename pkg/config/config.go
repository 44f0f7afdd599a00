package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of environment variable overrides, e.g.
	// REPORTOOR_GLOBAL_LOG_LEVEL.
	EnvPrefix = "REPORTOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultOutputDir is the default directory for run artifacts.
	DefaultOutputDir = "./test-results"

	// DefaultSlowTestThreshold is the default slow-test threshold in seconds.
	DefaultSlowTestThreshold = 5.0

	// DefaultMaxSlowTests is the default number of slowest tests reported.
	DefaultMaxSlowTests = 3

	// DefaultMarkdownMaxChars caps summary.md.
	DefaultMarkdownMaxChars = 60000

	// DefaultBaseBranch is the default pull request base branch.
	DefaultBaseBranch = "main"

	// DefaultListen is the default event receiver address.
	DefaultListen = ":8080"

	// DefaultUploadPrefix is the default S3 key prefix.
	DefaultUploadPrefix = "reports/runs"
)

var validate = validator.New()

// Config is the root configuration for reportoor.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Upload    UploadConfig    `yaml:"upload" mapstructure:"upload"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel        string `yaml:"log_level" mapstructure:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	OutputDir       string `yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
	ResultsOwner    string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
	ShowStackTraces bool   `yaml:"show_stack_traces" mapstructure:"show_stack_traces"`
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" mapstructure:"metrics_textfile"`
}

// ReportConfig controls metrics derivation and rendering.
type ReportConfig struct {
	// SlowTestThreshold is in seconds.
	SlowTestThreshold  float64           `yaml:"slow_test_threshold" mapstructure:"slow_test_threshold" validate:"gte=0"`
	MaxSlowTestsToShow int               `yaml:"max_slow_tests_to_show" mapstructure:"max_slow_tests_to_show" validate:"gte=1"`
	SourceRoot         string            `yaml:"source_root,omitempty" mapstructure:"source_root"`
	MarkdownMaxChars   int               `yaml:"markdown_max_chars" mapstructure:"markdown_max_chars" validate:"gte=0"`
	Labels             map[string]string `yaml:"labels,omitempty" mapstructure:"labels"`
	CollectHostInfo    bool              `yaml:"collect_host_info" mapstructure:"collect_host_info"`
}

// SlowThreshold returns SlowTestThreshold as a duration.
func (r ReportConfig) SlowThreshold() time.Duration {
	return time.Duration(r.SlowTestThreshold * float64(time.Second))
}

// PipelineConfig holds the channel toggles and per-channel settings.
type PipelineConfig struct {
	GenerateFix  bool                       `yaml:"generate_fix" mapstructure:"generate_fix"`
	CreateBug    bool                       `yaml:"create_bug" mapstructure:"create_bug"`
	GeneratePR   bool                       `yaml:"generate_pr" mapstructure:"generate_pr"`
	PublishToDB  bool                       `yaml:"publish_to_db" mapstructure:"publish_to_db"`
	SendEmail    bool                       `yaml:"send_email" mapstructure:"send_email"`
	Fix          FixConfig                  `yaml:"fix" mapstructure:"fix"`
	PR           PRConfig                   `yaml:"pr" mapstructure:"pr"`
	Bug          BugConfig                  `yaml:"bug" mapstructure:"bug"`
	DB           RateLimitConfig            `yaml:"db" mapstructure:"db"`
	Notification PipelineNotificationConfig `yaml:"notification" mapstructure:"notification"`
}

// RateLimitConfig paces collaborator calls of one channel. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute" validate:"gte=0"`
}

// FixConfig configures fix-suggestion generation.
type FixConfig struct {
	RateLimitConfig `yaml:",inline" mapstructure:",squash"`
	// MaxSourceBytes caps the source embedded in fix prompts. Zero embeds
	// the whole file; a truncated source never becomes a pull request.
	MaxSourceBytes int `yaml:"max_source_bytes" mapstructure:"max_source_bytes" validate:"gte=0"`
	StackLines     int `yaml:"stack_lines" mapstructure:"stack_lines" validate:"gte=0"`
}

// PRConfig configures pull request automation.
type PRConfig struct {
	RateLimitConfig `yaml:",inline" mapstructure:",squash"`
	BaseBranch      string   `yaml:"base_branch" mapstructure:"base_branch" validate:"required"`
	Draft           bool     `yaml:"draft" mapstructure:"draft"`
	Labels          []string `yaml:"labels,omitempty" mapstructure:"labels"`
}

// BugConfig configures bug filing.
type BugConfig struct {
	RateLimitConfig `yaml:",inline" mapstructure:",squash"`
	Labels          []string `yaml:"labels,omitempty" mapstructure:"labels"`
	Assignee        string   `yaml:"assignee,omitempty" mapstructure:"assignee"`
	Concurrency     int      `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
}

// PipelineNotificationConfig configures the notification channel.
type PipelineNotificationConfig struct {
	RateLimitConfig `yaml:",inline" mapstructure:",squash"`
	Recipients      []string `yaml:"recipients,omitempty" mapstructure:"recipients"`
	SubjectPrefix   string   `yaml:"subject_prefix,omitempty" mapstructure:"subject_prefix"`
}

// Load reads the configuration file at path (optional), applies defaults and
// REPORTOOR_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every scalar key so env overrides resolve even
// when the file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("global.output_dir", DefaultOutputDir)
	v.SetDefault("global.results_owner", "")
	v.SetDefault("global.show_stack_traces", false)
	v.SetDefault("global.metrics_textfile", "")

	v.SetDefault("report.slow_test_threshold", DefaultSlowTestThreshold)
	v.SetDefault("report.max_slow_tests_to_show", DefaultMaxSlowTests)
	v.SetDefault("report.source_root", "")
	v.SetDefault("report.markdown_max_chars", DefaultMarkdownMaxChars)
	v.SetDefault("report.collect_host_info", true)

	v.SetDefault("pipeline.generate_fix", false)
	v.SetDefault("pipeline.create_bug", false)
	v.SetDefault("pipeline.generate_pr", false)
	v.SetDefault("pipeline.publish_to_db", false)
	v.SetDefault("pipeline.send_email", false)
	v.SetDefault("pipeline.fix.requests_per_minute", 0)
	v.SetDefault("pipeline.fix.max_source_bytes", 0)
	v.SetDefault("pipeline.fix.stack_lines", 15)
	v.SetDefault("pipeline.pr.requests_per_minute", 0)
	v.SetDefault("pipeline.pr.base_branch", DefaultBaseBranch)
	v.SetDefault("pipeline.pr.draft", true)
	v.SetDefault("pipeline.pr.labels", []string{})
	v.SetDefault("pipeline.bug.requests_per_minute", 0)
	v.SetDefault("pipeline.bug.labels", []string{})
	v.SetDefault("pipeline.bug.assignee", "")
	v.SetDefault("pipeline.bug.concurrency", 1)
	v.SetDefault("pipeline.db.requests_per_minute", 0)
	v.SetDefault("pipeline.notification.requests_per_minute", 0)
	v.SetDefault("pipeline.notification.recipients", []string{})
	v.SetDefault("pipeline.notification.subject_prefix", "[reportoor]")

	v.SetDefault("upload.s3.enabled", false)
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.region", "")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.prefix", DefaultUploadPrefix)
	v.SetDefault("upload.s3.force_path_style", false)

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.auth_token_hash", "")
	v.SetDefault("server.requests_per_minute", 0)
}

// Validate checks field constraints and decodes every configured provider
// into its typed settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if err := c.Upload.validate(); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	return c.Providers.resolve()
}
