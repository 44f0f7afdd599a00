package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Provider slots.
const (
	SlotAI           = "ai"
	SlotBugTracker   = "bug_tracker"
	SlotPR           = "pr"
	SlotDatabase     = "database"
	SlotNotification = "notification"
)

// ProvidersConfig names the collaborator configured for each slot. A nil
// entry means the collaborator is not configured.
type ProvidersConfig struct {
	AI           *ProviderConfig `yaml:"ai,omitempty" mapstructure:"ai"`
	BugTracker   *ProviderConfig `yaml:"bug_tracker,omitempty" mapstructure:"bug_tracker"`
	PR           *ProviderConfig `yaml:"pr,omitempty" mapstructure:"pr"`
	Database     *ProviderConfig `yaml:"database,omitempty" mapstructure:"database"`
	Notification *ProviderConfig `yaml:"notification,omitempty" mapstructure:"notification"`
}

// ProviderConfig is a tagged union: Kind selects the settings schema and
// the remaining keys are decoded into it.
type ProviderConfig struct {
	Kind     string         `yaml:"kind" mapstructure:"kind" validate:"required"`
	Settings map[string]any `yaml:",inline" mapstructure:",remain"`

	typed any
}

// Typed returns the decoded settings, e.g. *OpenAISettings. It is nil until
// the config has been validated.
func (p *ProviderConfig) Typed() any {
	if p == nil {
		return nil
	}

	return p.typed
}

// OpenAISettings configures the OpenAI-compatible fix generator.
type OpenAISettings struct {
	APIKey       string        `mapstructure:"api_key" validate:"required"`
	Model        string        `mapstructure:"model"`
	BaseURL      string        `mapstructure:"base_url" validate:"omitempty,url"`
	MaxTokens    int           `mapstructure:"max_tokens" validate:"gte=0"`
	Temperature  float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// GitHubSettings configures the GitHub bug tracker and pull request
// provider.
type GitHubSettings struct {
	Token   string `mapstructure:"token" validate:"required"`
	Owner   string `mapstructure:"owner" validate:"required"`
	Repo    string `mapstructure:"repo" validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Dedupe searches open issues with the same title before filing.
	Dedupe bool `mapstructure:"dedupe"`
}

// SQLiteSettings configures the SQLite result store.
type SQLiteSettings struct {
	Path string `mapstructure:"path" validate:"required"`
}

// PostgresSettings configures the PostgreSQL result store.
type PostgresSettings struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// DSN builds the PostgreSQL connection string.
func (p *PostgresSettings) DSN() string {
	port := p.Port
	if port == 0 {
		port = 5432
	}

	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, port, p.User, p.Password, p.Database, sslMode,
	)
}

// SMTPSettings configures email notifications.
type SMTPSettings struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,gte=1,lte=65535"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"required,email"`
}

// WebhookSettings configures JSON webhook notifications.
type WebhookSettings struct {
	URL     string            `mapstructure:"url" validate:"required,url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// providerKinds lists the accepted kinds per slot.
var providerKinds = map[string]map[string]func() any{
	SlotAI: {
		"openai": func() any { return &OpenAISettings{} },
	},
	SlotBugTracker: {
		"github": func() any { return &GitHubSettings{} },
	},
	SlotPR: {
		"github": func() any { return &GitHubSettings{} },
	},
	SlotDatabase: {
		"sqlite":   func() any { return &SQLiteSettings{} },
		"postgres": func() any { return &PostgresSettings{} },
	},
	SlotNotification: {
		"smtp":    func() any { return &SMTPSettings{} },
		"webhook": func() any { return &WebhookSettings{} },
	},
}

func (p *ProvidersConfig) resolve() error {
	slots := []struct {
		name string
		cfg  *ProviderConfig
	}{
		{SlotAI, p.AI},
		{SlotBugTracker, p.BugTracker},
		{SlotPR, p.PR},
		{SlotDatabase, p.Database},
		{SlotNotification, p.Notification},
	}

	for _, slot := range slots {
		if slot.cfg == nil {
			continue
		}

		if err := slot.cfg.resolve(slot.name); err != nil {
			return fmt.Errorf("providers.%s: %w", slot.name, err)
		}
	}

	return nil
}

func (p *ProviderConfig) resolve(slot string) error {
	factory, ok := providerKinds[slot][p.Kind]
	if !ok {
		return fmt.Errorf("unknown kind %q (supported: %s)", p.Kind, strings.Join(kindNames(slot), ", "))
	}

	out := factory()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	if err := decoder.Decode(expandEnv(p.Settings)); err != nil {
		return fmt.Errorf("decoding %s settings: %w", p.Kind, err)
	}

	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validating %s settings: %w", p.Kind, err)
	}

	p.typed = out

	return nil
}

func kindNames(slot string) []string {
	names := make([]string, 0, len(providerKinds[slot]))
	for name := range providerKinds[slot] {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// expandEnv substitutes ${VAR} references in top-level string settings so
// secrets can stay out of the file.
func expandEnv(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))

	for k, v := range settings {
		if s, ok := v.(string); ok {
			out[k] = os.ExpandEnv(s)

			continue
		}

		out[k] = v
	}

	return out
}
