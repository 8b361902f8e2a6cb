package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tlsrelay/pkg/cli"
	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
)

var caFlags struct {
	subject            string
	validity           time.Duration
	keyBits            int
	signatureAlgorithm string
	out                string
	storeType          string
	password           string
	passwordEnv        string
	trustOut           string
}

var certsCACmd = &cobra.Command{
	Use:   "ca",
	Short: "Generate a self-signed CA store",
	Long: `Generate a self-signed CA key and certificate and write them to a store.

The CA can sign end-entity certificates only. Use --trust-out to also write a
store that trusts the CA certificate, suitable as a trust store on either side
of the relay.

Examples:
  # PKCS12 CA store
  tlsrelay certs ca --subject "CN=Relay CA,O=Example" --out ca.p12 --password changeit

  # PEM CA store valid for 30 days
  tlsrelay certs ca --subject "CN=Test CA" --validity 720h --type PEM --out ca.pem`,
	RunE: runCertsCA,
}

func init() {
	certsCmd.AddCommand(certsCACmd)

	certsCACmd.Flags().StringVar(&caFlags.subject, "subject", "CN=tlsrelay CA", "CA distinguished name")
	certsCACmd.Flags().DurationVar(&caFlags.validity, "validity", 365*24*time.Hour, "CA certificate validity")
	certsCACmd.Flags().IntVar(&caFlags.keyBits, "key-bits", ca.DefaultKeyBits, "RSA key size")
	certsCACmd.Flags().StringVar(&caFlags.signatureAlgorithm, "signature-algorithm", "", "signature algorithm (default for the key type when empty)")
	certsCACmd.Flags().StringVarP(&caFlags.out, "out", "o", "ca.p12", "output store path")
	certsCACmd.Flags().StringVar(&caFlags.storeType, "type", "PKCS12", "output store type (PKCS12 or PEM)")
	certsCACmd.Flags().StringVar(&caFlags.password, "password", "", "output store password")
	certsCACmd.Flags().StringVar(&caFlags.passwordEnv, "password-env", "", "read the output store password from this environment variable")
	certsCACmd.Flags().StringVar(&caFlags.trustOut, "trust-out", "", "also write a trust store holding the CA certificate")
}

func runCertsCA(cmd *cobra.Command, args []string) error {
	subject, err := ca.ParseDN(caFlags.subject)
	if err != nil {
		return cli.NewConfigError("subject", err.Error())
	}
	alg, err := ca.ParseSignatureAlgorithm(caFlags.signatureAlgorithm)
	if err != nil {
		return cli.NewConfigError("signature-algorithm", err.Error())
	}
	password, err := storePassword(caFlags.password, caFlags.passwordEnv)
	if err != nil {
		return cli.NewConfigError("password-env", err.Error())
	}

	now := time.Now()
	bundle, err := ca.GenerateAuthority(ca.GenerateOptions{
		Subject:            subject,
		NotBefore:          now.Add(-time.Minute),
		NotAfter:           now.Add(caFlags.validity),
		KeyBits:            caFlags.keyBits,
		SignatureAlgorithm: alg,
	})
	if err != nil {
		return cli.NewCommandError("certs ca", err)
	}

	if err := writeStore(caFlags.out, bundle, caFlags.storeType, password); err != nil {
		return cli.NewCommandError("certs ca", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ CA written to %s\n", caFlags.out)

	if caFlags.trustOut != "" {
		cert, _ := bundle.Certificate(keystore.DefaultKeyAlias)
		trust, err := keystore.NewTrustBundle(cert)
		if err != nil {
			return cli.NewCommandError("certs ca", err)
		}
		if err := writeStore(caFlags.trustOut, trust, caFlags.storeType, password); err != nil {
			return cli.NewCommandError("certs ca", err)
		}
		fmt.Fprintf(out, "✓ Trust store written to %s\n", caFlags.trustOut)
	}

	if verbose {
		cert, _ := bundle.Certificate(keystore.DefaultKeyAlias)
		fmt.Fprintf(out, "  Subject:   %s\n", cert.Subject)
		fmt.Fprintf(out, "  Not After: %s\n", cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}
