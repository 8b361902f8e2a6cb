/*
Package keystore models trust and key material and keeps it fresh.

A Bundle is an immutable snapshot of key entries (private key plus
certificate chain, addressed by alias) and trusted certificate entries. Bundles
are produced by a Loader, usually a FileLoader reading a PKCS#12 or PEM file,
or by the certificate authority when it mints a leaf.

A Manager publishes the most recent Bundle and refreshes it lazily: Get returns
the cached snapshot until the reload interval has passed, then exactly one
caller reloads it while the others keep receiving the previous snapshot. Load
failures never reach callers; the old snapshot stays in service and a warning
is logged.

	loader := keystore.NewFileLoader(keystore.StoreConfig{
		Path:           "/etc/tlsrelay/server.p12",
		Type:           keystore.TypePKCS12,
		Password:       "changeit",
		ReloadInterval: time.Minute,
	})
	manager := keystore.NewManager(loader, time.Minute, keystore.WithName("server"))
	bundle := manager.Get()

A Watcher can be attached to invalidate managers as soon as their store files
change on disk, instead of waiting for the interval to expire.
*/
package keystore
