package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// newTestCommand returns a command whose output is captured in the returned
// buffer.
func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return cmd, &buf
}

// generateCA writes a PKCS12 CA store and a trust store into dir.
func generateCA(t *testing.T, dir string) (caPath, trustPath string) {
	t.Helper()

	saved := caFlags
	t.Cleanup(func() { caFlags = saved })

	caPath = filepath.Join(dir, "ca.p12")
	trustPath = filepath.Join(dir, "trust.p12")

	caFlags.subject = "CN=Test CA,O=Example"
	caFlags.validity = 24 * time.Hour
	caFlags.keyBits = 2048
	caFlags.signatureAlgorithm = ""
	caFlags.out = caPath
	caFlags.storeType = "PKCS12"
	caFlags.password = "changeit"
	caFlags.passwordEnv = ""
	caFlags.trustOut = trustPath

	cmd, _ := newTestCommand()
	if err := runCertsCA(cmd, nil); err != nil {
		t.Fatalf("runCertsCA() error = %v", err)
	}
	return caPath, trustPath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
