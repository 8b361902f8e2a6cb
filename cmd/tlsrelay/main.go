// tlsrelay terminates TLS from upstream clients and re-originates it towards
// a downstream server, optionally presenting a client certificate minted
// for the identity each upstream client proved.
//
// Usage:
//
//	# Start the relay
//	tlsrelay run --config /etc/tlsrelay/config.yaml
//
//	# Check a configuration file and load its stores
//	tlsrelay validate --config config.yaml
//
//	# Create a CA store and issue a certificate from it
//	tlsrelay certs ca --subject "CN=Relay CA,O=Example" --out ca.p12 --password changeit
//	tlsrelay certs issue --ca ca.p12 --ca-password changeit --subject "CN=relay" --dns relay.example.com --out relay.p12
//
//	# Inspect a store
//	tlsrelay certs info relay.p12 --password changeit
//
//	# List certificates minted by a running relay
//	tlsrelay issued list --subject alice
package main

func main() {
	Execute()
}
