/*
Package security groups the key material, certificate authority and TLS
packages of the relay.

# Key Material

Stores are PKCS#12 or PEM files, served through a hot-reloading manager:

	m := keystore.NewManager(keystore.NewFileLoader(keystore.StoreConfig{
		Path:         "/etc/tlsrelay/relay.p12",
		Type:         keystore.TypePKCS12,
		PasswordFile: "/run/secrets/relay-password",
	}), 5*time.Minute, keystore.WithName("upstream.key_store"))

	bundle := m.Get()

# TLS Configuration

Build the server side of the relay from managers:

	b, err := tls.NewServerBuilder(tls.ServerOptions{
		KeyManager:        m,
		TrustManager:      clients,
		RequireClientCert: true,
	})
	if err != nil {
		log.Fatal(err)
	}

	ln, err := cryptotls.Listen("tcp", ":9443", b.Config())

# Certificate Authority

Mint a client certificate for a verified peer:

	issuer := ca.NewIssuer(ca.New(caStore, ""), ca.IssuerConfig{Validity: time.Hour})
	clientBundle, err := issuer.ClientBundle(ctx, peerCert)

# Store Passwords

Passwords are resolved from a file, an environment variable or an inline
value, in that order of precedence:

	password, err := secrets.Resolve(ctx, secrets.Reference{Env: "RELAY_STORE_PASSWORD"})
*/
package security
