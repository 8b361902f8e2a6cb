/*
Package tls builds the crypto/tls configurations for both legs of a relay.

# Upstream (server side)

The server builder serves the key material of a keystore.Manager and, when a
trust manager is configured, verifies client certificates against it. Material
is resolved on every handshake through GetConfigForClient, so reloaded stores
apply to the next connection without rebuilding anything:

	server, err := tls.NewServerBuilder(tls.ServerOptions{
		KeyManager:        serverKeys,
		TrustManager:      clientCAs,
		RequireClientCert: true,
	})
	listener := cryptotls.NewListener(l, server.Config())

Client authentication follows the configuration:
  - no trust manager: no client certificate is requested
  - trust manager, not required: a certificate is verified if one is sent
  - trust manager, required: the handshake fails without a valid certificate

# Downstream (client side)

The client builder verifies the server chain against the trust manager's
current bundle (or the system roots) and then runs a HostnameVerifier:

	client, err := tls.NewClientBuilder(tls.ClientOptions{
		TrustManager:     serverCAs,
		HostnameVerifier: tls.StrictHostnameVerifier{},
	})
	conn := cryptotls.Client(raw, client.Config("backend.internal", identity))

identity is the bundle whose first key entry is presented as client
certificate; it may be static or minted per connection.
*/
package tls
