package ca

import (
	"crypto/x509"
	"fmt"
	"strings"
)

var signatureAlgorithms = map[string]x509.SignatureAlgorithm{
	"sha256rsa":        x509.SHA256WithRSA,
	"sha384rsa":        x509.SHA384WithRSA,
	"sha512rsa":        x509.SHA512WithRSA,
	"sha256rsapss":     x509.SHA256WithRSAPSS,
	"sha384rsapss":     x509.SHA384WithRSAPSS,
	"sha512rsapss":     x509.SHA512WithRSAPSS,
	"sha256rsaandmgf1": x509.SHA256WithRSAPSS,
	"sha384rsaandmgf1": x509.SHA384WithRSAPSS,
	"sha512rsaandmgf1": x509.SHA512WithRSAPSS,
	"sha256ecdsa":      x509.ECDSAWithSHA256,
	"sha384ecdsa":      x509.ECDSAWithSHA384,
	"sha512ecdsa":      x509.ECDSAWithSHA512,
	"ecdsasha256":      x509.ECDSAWithSHA256,
	"ecdsasha384":      x509.ECDSAWithSHA384,
	"ecdsasha512":      x509.ECDSAWithSHA512,
	"ed25519":          x509.PureEd25519,
}

// ParseSignatureAlgorithm accepts both JCA names ("SHA256withRSA") and the
// names crypto/x509 prints ("SHA256-RSA"). An empty name returns
// x509.UnknownSignatureAlgorithm, which lets crypto/x509 pick a default for
// the CA key.
func ParseSignatureAlgorithm(name string) (x509.SignatureAlgorithm, error) {
	if strings.TrimSpace(name) == "" {
		return x509.UnknownSignatureAlgorithm, nil
	}

	key := strings.ToLower(name)
	key = strings.NewReplacer("-", "", "_", "", " ", "", "with", "").Replace(key)

	alg, ok := signatureAlgorithms[key]
	if !ok {
		return x509.UnknownSignatureAlgorithm, fmt.Errorf("unsupported signature algorithm %q", name)
	}
	return alg, nil
}
