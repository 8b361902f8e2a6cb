/*
Package ca mints short-lived leaf certificates for the downstream leg.

A CertificateAuthority reads its signing key and certificate from a
keystore.Manager on every issuance, so a rotated CA store takes effect without
a restart. Leaves get a fresh RSA key, a random 128-bit serial number and no CA
basic constraints; the returned bundle holds a single key entry whose chain is
the leaf alone.

GenerateAuthority creates a self-signed CA for bootstrapping and tests. Issuer
maps a verified upstream peer certificate to a subject and issues a client
certificate for it, recording each issuance in an optional ledger.
*/
package ca
