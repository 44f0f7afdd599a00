package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults and REPORTOOR_* environment
overrides were applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		redactSecrets(cfg)

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)

		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}

		return enc.Close()
	},
}

var configHashTokenCmd = &cobra.Command{
	Use:   "hash-token",
	Short: "Hash a bearer token for server.auth_token_hash",
	Long:  `Read a token from the first line of stdin and print its bcrypt hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := bufio.NewScanner(os.Stdin)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return fmt.Errorf("reading token: %w", err)
			}

			return errors.New("no token on stdin")
		}

		token := strings.TrimSpace(sc.Text())
		if token == "" {
			return errors.New("token is empty")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing token: %w", err)
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))

		return err
	},
}

// redactSecrets blanks credentials before the config is printed.
func redactSecrets(cfg *config.Config) {
	if cfg.Upload.S3.SecretAccessKey != "" {
		cfg.Upload.S3.SecretAccessKey = redacted
	}

	for _, p := range []*config.ProviderConfig{
		cfg.Providers.AI,
		cfg.Providers.BugTracker,
		cfg.Providers.PR,
		cfg.Providers.Database,
		cfg.Providers.Notification,
	} {
		if p == nil {
			continue
		}

		for k := range p.Settings {
			lower := strings.ToLower(k)
			if strings.Contains(lower, "key") || strings.Contains(lower, "token") ||
				strings.Contains(lower, "password") || strings.Contains(lower, "secret") ||
				lower == "dsn" {
				p.Settings[k] = redacted
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configHashTokenCmd)
}
