package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/tlsrelay/pkg/cli"
	"mercator-hq/tlsrelay/pkg/config"
	"mercator-hq/tlsrelay/pkg/security/keystore"
)

var validateFlags struct {
	skipStores bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate the configuration file and load every configured store.

Store files are decoded with their configured passwords so that a wrong
password or an unsupported store type is reported before the relay starts.

Examples:
  # Validate the default config file
  tlsrelay validate

  # Validate syntax and values only
  tlsrelay validate --config config.yaml --skip-stores`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.skipStores, "skip-stores", false, "do not load store files")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", cfgFile)

	for _, ch := range cfg.Proxy.Channels {
		fmt.Fprintf(out, "  channel %s: %s -> %s\n", ch.Name, ch.Upstream.Address(), ch.Downstream.Address())
	}

	if validateFlags.skipStores {
		return nil
	}

	for _, s := range configuredStores(cfg) {
		b, err := keystore.NewFileLoader(s.config).Load()
		if err != nil {
			return cli.NewConfigError(s.field, err.Error())
		}
		fmt.Fprintf(out, "✓ %s: %d key entries, %d trusted certificates\n",
			s.field, len(b.KeyEntries()), len(b.TrustedEntries()))
	}
	return nil
}

type storeField struct {
	field  string
	config keystore.StoreConfig
}

// configuredStores lists the stores the relay would load for cfg.
func configuredStores(cfg *config.Config) []storeField {
	var stores []storeField
	add := func(field string, enabled bool, s keystore.StoreConfig) {
		if enabled && !s.IsZero() {
			stores = append(stores, storeField{field: field, config: s})
		}
	}
	add("upstream_tls.key_store", cfg.UpstreamTLS.Enabled, cfg.UpstreamTLS.KeyStore)
	add("upstream_tls.trust_store", cfg.UpstreamTLS.Enabled, cfg.UpstreamTLS.TrustStore)
	add("downstream_tls.trust_store", cfg.DownstreamTLS.Enabled, cfg.DownstreamTLS.TrustStore)
	add("downstream_tls.key_store", cfg.DownstreamTLS.Enabled && !cfg.Issuance.Enabled, cfg.DownstreamTLS.KeyStore)
	add("issuance.ca.key_store", cfg.Issuance.Enabled, cfg.Issuance.CA.KeyStore)
	return stores
}
