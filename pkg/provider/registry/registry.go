// Package registry resolves configured collaborators into a provider.Set.
package registry

import (
	"context"
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/provider/database"
	"github.com/ethpandaops/reportoor/pkg/provider/github"
	"github.com/ethpandaops/reportoor/pkg/provider/notify"
	"github.com/ethpandaops/reportoor/pkg/provider/openai"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Build constructs every configured collaborator. Slots that fail to start
// are left nil and reported in the returned error; the Set is always
// usable. Callers must Close the Set.
func Build(ctx context.Context, log logrus.FieldLogger, cfg *config.ProvidersConfig) (*provider.Set, error) {
	set := &provider.Set{}

	var result *multierror.Error

	switch s := cfg.AI.Typed().(type) {
	case nil:
	case *config.OpenAISettings:
		set.AI = openai.New(log, s)
	default:
		result = multierror.Append(result, unsupported(config.SlotAI, s))
	}

	// Bug tracker and PR provider share the GitHub client type but are
	// configured independently.
	switch s := cfg.BugTracker.Typed().(type) {
	case nil:
	case *config.GitHubSettings:
		set.BugTracker = github.New(log, s)
	default:
		result = multierror.Append(result, unsupported(config.SlotBugTracker, s))
	}

	switch s := cfg.PR.Typed().(type) {
	case nil:
	case *config.GitHubSettings:
		set.PR = github.New(log, s)
	default:
		result = multierror.Append(result, unsupported(config.SlotPR, s))
	}

	var store database.Store

	switch s := cfg.Database.Typed().(type) {
	case nil:
	case *config.SQLiteSettings:
		store = database.NewSQLite(log, s)
	case *config.PostgresSettings:
		store = database.NewPostgres(log, s)
	default:
		result = multierror.Append(result, unsupported(config.SlotDatabase, s))
	}

	if store != nil {
		if err := store.Start(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("providers.%s: %w", config.SlotDatabase, err))
		} else {
			set.Database = store
			set.AddCloser(store.Stop)
		}
	}

	switch s := cfg.Notification.Typed().(type) {
	case nil:
	case *config.SMTPSettings:
		set.Notification = notify.NewEmail(log, s)
	case *config.WebhookSettings:
		set.Notification = notify.NewWebhook(log, s)
	default:
		result = multierror.Append(result, unsupported(config.SlotNotification, s))
	}

	return set, result.ErrorOrNil()
}

func unsupported(slot string, settings any) error {
	return fmt.Errorf("providers.%s: unsupported settings type %T", slot, settings)
}
