package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage stores and certificates",
	Long: `Manage the key and trust stores used by the relay.

Subcommands:
  ca    - Generate a self-signed CA store
  issue - Issue a certificate from a CA store
  info  - Display the entries of a store

Examples:
  # Generate a CA valid for a year and a trust store holding its certificate
  tlsrelay certs ca --subject "CN=Relay CA" --out ca.p12 --password changeit --trust-out trust.p12

  # Issue a server certificate for the upstream listener
  tlsrelay certs issue --ca ca.p12 --ca-password changeit --subject "CN=relay" --dns localhost --out relay.p12

  # Display store entries
  tlsrelay certs info relay.p12`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}

// storePassword returns the inline password, or the value of envName when
// it is set.
func storePassword(inline, envName string) (string, error) {
	if envName == "" {
		return inline, nil
	}
	v, ok := os.LookupEnv(envName)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", envName)
	}
	return v, nil
}

func writeStore(path string, b *keystore.Bundle, typeName, password string) error {
	t, err := keystore.ParseStoreType(typeName)
	if err != nil {
		return err
	}
	return keystore.WriteFile(path, b, t, password)
}
