package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// PeerCertificate returns the verified leaf the peer presented, or nil.
func PeerCertificate(cs tls.ConnectionState) *x509.Certificate {
	if len(cs.PeerCertificates) == 0 {
		return nil
	}
	return cs.PeerCertificates[0]
}

// ExtractIdentity extracts an identity string from a certificate.
//
// Supported sources:
//   - "subject": the full subject DN
//   - "subject.CN": Common Name from Subject
//   - "subject.OU": first Organizational Unit
//   - "subject.O": first Organization
//   - "SAN": first DNS subject alternative name
//
// Returns an empty string if the identity cannot be extracted.
func ExtractIdentity(cert *x509.Certificate, source string) string {
	if cert == nil {
		return ""
	}

	switch source {
	case "subject":
		return cert.Subject.String()

	case "subject.CN", "":
		return cert.Subject.CommonName

	case "subject.OU":
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}

	case "subject.O":
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}

	case "SAN":
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}

	return ""
}

// ConnectionInfo summarizes a completed handshake for logging.
type ConnectionInfo struct {
	Version     string
	CipherSuite string
	ServerName  string
	PeerSubject string
	PeerSerial  string
	PeerIssuer  string
}

// DescribeConnection extracts loggable details from a handshake.
func DescribeConnection(cs tls.ConnectionState) ConnectionInfo {
	info := ConnectionInfo{
		Version:     tls.VersionName(cs.Version),
		CipherSuite: tls.CipherSuiteName(cs.CipherSuite),
		ServerName:  cs.ServerName,
	}
	if peer := PeerCertificate(cs); peer != nil {
		info.PeerSubject = peer.Subject.String()
		info.PeerSerial = fmt.Sprintf("%x", peer.SerialNumber)
		info.PeerIssuer = peer.Issuer.String()
	}
	return info
}

// LogAttrs returns the info as slog key-value pairs, skipping empty fields.
func (i ConnectionInfo) LogAttrs() []any {
	attrs := []any{"tls_version", i.Version, "cipher_suite", i.CipherSuite}
	if i.ServerName != "" {
		attrs = append(attrs, "server_name", i.ServerName)
	}
	if i.PeerSubject != "" {
		attrs = append(attrs, "peer_subject", i.PeerSubject, "peer_serial", i.PeerSerial)
	}
	return attrs
}
