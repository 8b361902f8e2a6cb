package main

import (
	"crypto/x509"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tlsrelay/pkg/cli"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	tlsutil "mercator-hq/tlsrelay/pkg/security/tls"
)

var infoFlags struct {
	storeType   string
	password    string
	passwordEnv string
	warnBefore  time.Duration
	format      string
}

var certsInfoCmd = &cobra.Command{
	Use:   "info <store>",
	Short: "Display the entries of a store",
	Long: `Display every key entry and trusted certificate of a store.

Each row shows the entry alias, whether it is a key entry or a trusted
certificate, the certificate subject, issuer, serial number and expiry, and a
warning if the certificate expires within --warn-before.

Examples:
  # Display a PKCS12 store
  tlsrelay certs info relay.p12 --password changeit

  # Display a PEM store as JSON
  tlsrelay certs info trust.pem --type PEM --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runCertsInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)

	certsInfoCmd.Flags().StringVar(&infoFlags.storeType, "type", "PKCS12", "store type (PKCS12 or PEM)")
	certsInfoCmd.Flags().StringVar(&infoFlags.password, "password", "", "store password")
	certsInfoCmd.Flags().StringVar(&infoFlags.passwordEnv, "password-env", "", "read the store password from this environment variable")
	certsInfoCmd.Flags().DurationVar(&infoFlags.warnBefore, "warn-before", tlsutil.DefaultExpiryWarning, "warn about certificates expiring within this duration")
	certsInfoCmd.Flags().StringVarP(&infoFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

func runCertsInfo(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(infoFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	storeType, err := keystore.ParseStoreType(infoFlags.storeType)
	if err != nil {
		return cli.NewConfigError("type", err.Error())
	}

	bundle, err := keystore.NewFileLoader(keystore.StoreConfig{
		Path:        args[0],
		Type:        storeType,
		Password:    infoFlags.password,
		PasswordEnv: infoFlags.passwordEnv,
	}).Load()
	if err != nil {
		return cli.NewCommandError("certs info", err)
	}

	table := describeStore(bundle, time.Now(), infoFlags.warnBefore)
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), table)
}

func describeStore(b *keystore.Bundle, now time.Time, warnBefore time.Duration) *cli.Table {
	table := &cli.Table{Headers: []string{"ALIAS", "KIND", "SUBJECT", "ISSUER", "SERIAL", "NOT_AFTER", "WARNING"}}
	add := func(alias, kind string, cert *x509.Certificate) {
		info := tlsutil.ExtractCertificateInfo(cert)
		_, warning := tlsutil.CheckCertificateExpiration(cert, now, warnBefore)
		table.Append(alias, kind, info.Subject, info.Issuer, info.SerialNumber,
			info.NotAfter.UTC().Format(time.RFC3339), warning)
	}
	for _, k := range b.KeyEntries() {
		if leaf := k.Leaf(); leaf != nil {
			add(k.Alias, "key", leaf)
		}
	}
	for _, t := range b.TrustedEntries() {
		add(t.Alias, "trusted", t.Certificate)
	}
	return table
}
