package ca

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

var attributeOIDs = map[string]asn1.ObjectIdentifier{
	"CN":           {2, 5, 4, 3},
	"SN":           {2, 5, 4, 4},
	"SURNAME":      {2, 5, 4, 4},
	"SERIALNUMBER": {2, 5, 4, 5},
	"C":            {2, 5, 4, 6},
	"L":            {2, 5, 4, 7},
	"ST":           {2, 5, 4, 8},
	"S":            {2, 5, 4, 8},
	"STREET":       {2, 5, 4, 9},
	"O":            {2, 5, 4, 10},
	"OU":           {2, 5, 4, 11},
	"T":            {2, 5, 4, 12},
	"TITLE":        {2, 5, 4, 12},
	"POSTALCODE":   {2, 5, 4, 17},
	"GIVENNAME":    {2, 5, 4, 42},
	"UID":          {0, 9, 2342, 19200300, 100, 1, 1},
	"DC":           {0, 9, 2342, 19200300, 100, 1, 25},
	"E":            {1, 2, 840, 113549, 1, 9, 1},
	"EMAILADDRESS": {1, 2, 840, 113549, 1, 9, 1},
}

// ParseDN parses an RFC 4514 distinguished name such as
// "CN=relay,O=Example,C=DE".
//
// The attributes are returned as ExtraNames in certificate order (the reverse
// of the string order), so the name survives a round trip through a
// certificate unchanged, including attributes pkix.Name has no field for.
func ParseDN(s string) (pkix.Name, error) {
	dn, err := ldap.ParseDN(s)
	if err != nil {
		return pkix.Name{}, fmt.Errorf("invalid distinguished name %q: %w", s, err)
	}
	if len(dn.RDNs) == 0 {
		return pkix.Name{}, fmt.Errorf("distinguished name %q is empty", s)
	}

	var attrs []pkix.AttributeTypeAndValue
	for i := len(dn.RDNs) - 1; i >= 0; i-- {
		for _, atv := range dn.RDNs[i].Attributes {
			oid, err := attributeOID(atv.Type)
			if err != nil {
				return pkix.Name{}, fmt.Errorf("invalid distinguished name %q: %w", s, err)
			}
			attrs = append(attrs, pkix.AttributeTypeAndValue{Type: oid, Value: atv.Value})
		}
	}

	return pkix.Name{ExtraNames: attrs}, nil
}

// MustParseDN is like ParseDN but panics on error. Intended for constants.
func MustParseDN(s string) pkix.Name {
	n, err := ParseDN(s)
	if err != nil {
		panic(err)
	}
	return n
}

func attributeOID(t string) (asn1.ObjectIdentifier, error) {
	if oid, ok := attributeOIDs[strings.ToUpper(t)]; ok {
		return oid, nil
	}

	// Dotted-decimal form, e.g. 2.5.4.3.
	parts := strings.Split(t, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("unknown attribute type %q", t)
	}
	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("unknown attribute type %q", t)
		}
		oid = append(oid, n)
	}
	return oid, nil
}

// CloneSubject copies a parsed certificate subject so that it is re-encoded
// with the same attributes in the same order.
func CloneSubject(n pkix.Name) pkix.Name {
	if len(n.Names) == 0 {
		return n
	}
	return pkix.Name{ExtraNames: append([]pkix.AttributeTypeAndValue(nil), n.Names...)}
}

// CommonNameOnly returns a name holding only the common name of n.
func CommonNameOnly(n pkix.Name) pkix.Name {
	return pkix.Name{CommonName: n.CommonName}
}
