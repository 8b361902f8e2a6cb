package main

import (
	"crypto/x509"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
)

func loadStore(t *testing.T, path string, typ keystore.StoreType, password string) *keystore.Bundle {
	t.Helper()
	b, err := keystore.NewFileLoader(keystore.StoreConfig{Path: path, Type: typ, Password: password}).Load()
	if err != nil {
		t.Fatalf("failed to load %s: %v", path, err)
	}
	return b
}

func TestCertsCA(t *testing.T) {
	dir := t.TempDir()
	caPath, trustPath := generateCA(t, dir)

	caStore := loadStore(t, caPath, keystore.TypePKCS12, "changeit")
	cert, ok := caStore.Certificate(keystore.DefaultKeyAlias)
	if !ok {
		t.Fatal("CA store has no key entry")
	}
	if !cert.IsCA {
		t.Error("CA certificate is not a CA")
	}
	if got := cert.Subject.CommonName; got != "Test CA" {
		t.Errorf("CommonName = %q, want %q", got, "Test CA")
	}

	trust := loadStore(t, trustPath, keystore.TypePKCS12, "changeit")
	if len(trust.KeyEntries()) != 0 {
		t.Error("trust store should not hold key entries")
	}
	if got := len(trust.TrustedEntries()); got != 1 {
		t.Fatalf("trusted entries = %d, want 1", got)
	}
	if !trust.TrustedEntries()[0].Certificate.Equal(cert) {
		t.Error("trust store does not hold the CA certificate")
	}
}

func TestCertsCA_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		modify func()
	}{
		{
			name:   "invalid subject",
			modify: func() { caFlags.subject = "not a dn" },
		},
		{
			name:   "unsupported store type",
			modify: func() { caFlags.storeType = "JKS" },
		},
		{
			name:   "unknown signature algorithm",
			modify: func() { caFlags.signatureAlgorithm = "MD2withRSA" },
		},
		{
			name:   "unset password variable",
			modify: func() { caFlags.passwordEnv = "TLSRELAY_TEST_UNSET_PASSWORD" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := caFlags
			defer func() { caFlags = saved }()

			caFlags.subject = "CN=CA"
			caFlags.validity = time.Hour
			caFlags.keyBits = 2048
			caFlags.signatureAlgorithm = ""
			caFlags.out = filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".p12")
			caFlags.storeType = "PKCS12"
			caFlags.password = ""
			caFlags.passwordEnv = ""
			caFlags.trustOut = ""
			tt.modify()

			cmd, _ := newTestCommand()
			if err := runCertsCA(cmd, nil); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestCertsIssue(t *testing.T) {
	dir := t.TempDir()
	caPath, trustPath := generateCA(t, dir)

	saved := issueFlags
	defer func() { issueFlags = saved }()

	leafPath := filepath.Join(dir, "relay.pem")
	issueFlags.caPath = caPath
	issueFlags.caType = "PKCS12"
	issueFlags.caPassword = "changeit"
	issueFlags.caPasswordEnv = ""
	issueFlags.caAlias = keystore.DefaultKeyAlias
	issueFlags.subject = "CN=relay,O=Example"
	issueFlags.dnsNames = []string{"localhost"}
	issueFlags.ipAddresses = []string{"127.0.0.1"}
	issueFlags.validity = time.Hour
	issueFlags.keyBits = 2048
	issueFlags.signatureAlgorithm = "SHA256withRSA"
	issueFlags.out = leafPath
	issueFlags.storeType = "PEM"
	issueFlags.password = ""
	issueFlags.passwordEnv = ""

	cmd, buf := newTestCommand()
	if err := runCertsIssue(cmd, nil); err != nil {
		t.Fatalf("runCertsIssue() error = %v", err)
	}
	if !strings.Contains(buf.String(), leafPath) {
		t.Errorf("output %q does not mention %s", buf.String(), leafPath)
	}

	leafStore := loadStore(t, leafPath, keystore.TypePEM, "")
	leaf, ok := leafStore.Certificate(ca.LeafAlias)
	if !ok {
		t.Fatal("issued store has no key entry")
	}
	if leaf.SignatureAlgorithm != x509.SHA256WithRSA {
		t.Errorf("SignatureAlgorithm = %v, want %v", leaf.SignatureAlgorithm, x509.SHA256WithRSA)
	}
	if len(leaf.IPAddresses) != 1 || !leaf.IPAddresses[0].Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("IPAddresses = %v, want [127.0.0.1]", leaf.IPAddresses)
	}

	trust := loadStore(t, trustPath, keystore.TypePKCS12, "changeit")
	if _, err := leaf.Verify(x509.VerifyOptions{
		DNSName:   "localhost",
		Roots:     trust.CertPool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}); err != nil {
		t.Errorf("issued certificate does not verify against the CA: %v", err)
	}
}

func TestCertsIssue_Errors(t *testing.T) {
	dir := t.TempDir()
	caPath, _ := generateCA(t, dir)

	tests := []struct {
		name   string
		modify func()
	}{
		{name: "missing CA store", modify: func() { issueFlags.caPath = filepath.Join(dir, "missing.p12") }},
		{name: "wrong CA password", modify: func() { issueFlags.caPassword = "wrong" }},
		{name: "unknown CA alias", modify: func() { issueFlags.caAlias = "other" }},
		{name: "invalid IP", modify: func() { issueFlags.ipAddresses = []string{"not-an-ip"} }},
		{name: "invalid subject", modify: func() { issueFlags.subject = "CN" }},
		{name: "negative validity", modify: func() { issueFlags.validity = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := issueFlags
			defer func() { issueFlags = saved }()

			issueFlags.caPath = caPath
			issueFlags.caType = "PKCS12"
			issueFlags.caPassword = "changeit"
			issueFlags.caPasswordEnv = ""
			issueFlags.caAlias = keystore.DefaultKeyAlias
			issueFlags.subject = "CN=leaf"
			issueFlags.dnsNames = nil
			issueFlags.ipAddresses = nil
			issueFlags.validity = time.Hour
			issueFlags.keyBits = 2048
			issueFlags.signatureAlgorithm = ""
			issueFlags.out = filepath.Join(dir, "leaf.p12")
			issueFlags.storeType = "PKCS12"
			issueFlags.password = ""
			issueFlags.passwordEnv = ""
			tt.modify()

			cmd, _ := newTestCommand()
			if err := runCertsIssue(cmd, nil); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestCertsInfo(t *testing.T) {
	dir := t.TempDir()
	caPath, _ := generateCA(t, dir)

	saved := infoFlags
	defer func() { infoFlags = saved }()

	infoFlags.storeType = "PKCS12"
	infoFlags.password = "changeit"
	infoFlags.passwordEnv = ""
	infoFlags.warnBefore = 48 * time.Hour
	infoFlags.format = "json"

	cmd, buf := newTestCommand()
	if err := runCertsInfo(cmd, []string{caPath}); err != nil {
		t.Fatalf("runCertsInfo() error = %v", err)
	}

	var rows []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row["alias"] != keystore.DefaultKeyAlias || row["kind"] != "key" {
		t.Errorf("row = %v, want alias %q kind key", row, keystore.DefaultKeyAlias)
	}
	if !strings.Contains(row["subject"], "CN=Test CA") {
		t.Errorf("subject = %q", row["subject"])
	}
	// The CA is valid for a day, inside the warning window.
	if row["warning"] == "" {
		t.Error("expected an expiry warning")
	}
}

func TestCertsInfo_Text(t *testing.T) {
	dir := t.TempDir()
	_, trustPath := generateCA(t, dir)

	saved := infoFlags
	defer func() { infoFlags = saved }()

	infoFlags.storeType = "PKCS12"
	infoFlags.password = "changeit"
	infoFlags.passwordEnv = ""
	infoFlags.warnBefore = time.Hour
	infoFlags.format = "text"

	cmd, buf := newTestCommand()
	if err := runCertsInfo(cmd, []string{trustPath}); err != nil {
		t.Fatalf("runCertsInfo() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header and one row:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ALIAS") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "trusted") {
		t.Errorf("row = %q, want a trusted entry", lines[1])
	}
}

func TestCertsInfo_BadFormat(t *testing.T) {
	saved := infoFlags
	defer func() { infoFlags = saved }()
	infoFlags.format = "xml"

	cmd, _ := newTestCommand()
	if err := runCertsInfo(cmd, []string{"unused.p12"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
