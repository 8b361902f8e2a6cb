package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tlsrelay/pkg/cli"
	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
)

var issueFlags struct {
	caPath             string
	caType             string
	caPassword         string
	caPasswordEnv      string
	caAlias            string
	subject            string
	dnsNames           []string
	ipAddresses        []string
	validity           time.Duration
	keyBits            int
	signatureAlgorithm string
	out                string
	storeType          string
	password           string
	passwordEnv        string
}

var certsIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a certificate from a CA store",
	Long: `Issue a certificate signed by the key entry of a CA store.

The certificate is usable for both client and server authentication. The
output store holds the new key with the certificate as its chain.

Examples:
  # Server certificate for the upstream listener
  tlsrelay certs issue --ca ca.p12 --ca-password changeit \
    --subject "CN=relay" --dns relay.example.com --ip 127.0.0.1 --out relay.p12

  # Client certificate valid for a day
  tlsrelay certs issue --ca ca.p12 --ca-password-env CA_PASSWORD \
    --subject "CN=alice,O=Example" --validity 24h --out alice.p12`,
	RunE: runCertsIssue,
}

func init() {
	certsCmd.AddCommand(certsIssueCmd)

	f := certsIssueCmd.Flags()
	f.StringVar(&issueFlags.caPath, "ca", "", "CA store path (required)")
	f.StringVar(&issueFlags.caType, "ca-type", "PKCS12", "CA store type (PKCS12 or PEM)")
	f.StringVar(&issueFlags.caPassword, "ca-password", "", "CA store password")
	f.StringVar(&issueFlags.caPasswordEnv, "ca-password-env", "", "read the CA store password from this environment variable")
	f.StringVar(&issueFlags.caAlias, "ca-alias", keystore.DefaultKeyAlias, "alias of the CA key entry")
	f.StringVar(&issueFlags.subject, "subject", "", "certificate distinguished name (required)")
	f.StringSliceVar(&issueFlags.dnsNames, "dns", nil, "DNS subject alternative names")
	f.StringSliceVar(&issueFlags.ipAddresses, "ip", nil, "IP subject alternative names")
	f.DurationVar(&issueFlags.validity, "validity", 90*24*time.Hour, "certificate validity")
	f.IntVar(&issueFlags.keyBits, "key-bits", ca.DefaultKeyBits, "RSA key size")
	f.StringVar(&issueFlags.signatureAlgorithm, "signature-algorithm", "", "signature algorithm (default for the CA key type when empty)")
	f.StringVarP(&issueFlags.out, "out", "o", "cert.p12", "output store path")
	f.StringVar(&issueFlags.storeType, "type", "PKCS12", "output store type (PKCS12 or PEM)")
	f.StringVar(&issueFlags.password, "password", "", "output store password")
	f.StringVar(&issueFlags.passwordEnv, "password-env", "", "read the output store password from this environment variable")

	_ = certsIssueCmd.MarkFlagRequired("ca")
	_ = certsIssueCmd.MarkFlagRequired("subject")
}

func runCertsIssue(cmd *cobra.Command, args []string) error {
	caType, err := keystore.ParseStoreType(issueFlags.caType)
	if err != nil {
		return cli.NewConfigError("ca-type", err.Error())
	}
	subject, err := ca.ParseDN(issueFlags.subject)
	if err != nil {
		return cli.NewConfigError("subject", err.Error())
	}
	alg, err := ca.ParseSignatureAlgorithm(issueFlags.signatureAlgorithm)
	if err != nil {
		return cli.NewConfigError("signature-algorithm", err.Error())
	}
	ips := make([]net.IP, 0, len(issueFlags.ipAddresses))
	for _, s := range issueFlags.ipAddresses {
		ip := net.ParseIP(s)
		if ip == nil {
			return cli.NewConfigError("ip", fmt.Sprintf("invalid IP address %q", s))
		}
		ips = append(ips, ip)
	}
	password, err := storePassword(issueFlags.password, issueFlags.passwordEnv)
	if err != nil {
		return cli.NewConfigError("password-env", err.Error())
	}

	material := keystore.NewManager(keystore.NewFileLoader(keystore.StoreConfig{
		Path:        issueFlags.caPath,
		Type:        caType,
		Password:    issueFlags.caPassword,
		PasswordEnv: issueFlags.caPasswordEnv,
	}), time.Hour, keystore.WithName("ca"))
	if err := material.Reload(); err != nil {
		return cli.NewCommandError("certs issue", err)
	}

	authority := ca.New(material, issueFlags.caAlias, ca.WithKeyBits(issueFlags.keyBits))
	now := time.Now()
	bundle, err := authority.IssueCertificate(subject, now.Add(-time.Minute), now.Add(issueFlags.validity), alg,
		ca.WithDNSNames(issueFlags.dnsNames...),
		ca.WithIPAddresses(ips...),
	)
	if err != nil {
		return cli.NewCommandError("certs issue", err)
	}

	if err := writeStore(issueFlags.out, bundle, issueFlags.storeType, password); err != nil {
		return cli.NewCommandError("certs issue", err)
	}

	cert, _ := bundle.Certificate(ca.LeafAlias)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Certificate written to %s\n", issueFlags.out)
	fmt.Fprintf(out, "  Subject: %s\n", cert.Subject)
	fmt.Fprintf(out, "  Serial:  %s\n", cert.SerialNumber.Text(16))
	return nil
}
