package ca

import (
	"crypto/x509"
	"testing"
)

func TestParseSignatureAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    x509.SignatureAlgorithm
		wantErr bool
	}{
		{in: "", want: x509.UnknownSignatureAlgorithm},
		{in: "SHA256withRSA", want: x509.SHA256WithRSA},
		{in: "SHA256-RSA", want: x509.SHA256WithRSA},
		{in: "sha512withrsa", want: x509.SHA512WithRSA},
		{in: "SHA256withRSAandMGF1", want: x509.SHA256WithRSAPSS},
		{in: "SHA384-RSAPSS", want: x509.SHA384WithRSAPSS},
		{in: "SHA256withECDSA", want: x509.ECDSAWithSHA256},
		{in: "ECDSA-SHA384", want: x509.ECDSAWithSHA384},
		{in: "MD5withRSA", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSignatureAlgorithm(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSignatureAlgorithm(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
