package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DNSNamePrefix is prepended to the encoded public key in certificate DNS
// names.
const DNSNamePrefix = "k"

// DefaultCertValidity is used when a config leaves the validity unset.
const DefaultCertValidity = 24 * time.Hour

var ErrInvalidCertificate = errors.New("remote: invalid certificate")

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// EncodePubKeyToDNS encodes an Ed25519 public key into a DNS name:
// "k" + base32(pubKey) with a lowercase alphabet.
func EncodePubKeyToDNS(pubKey ed25519.PublicKey) string {
	return DNSNamePrefix + base32Encoding.EncodeToString(pubKey)
}

// GenerateCertificate creates a self-signed Ed25519 certificate whose single
// DNS name encodes the public key.
func GenerateCertificate(priv ed25519.PrivateKey, validity time.Duration) (*tls.Certificate, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is not Ed25519", ErrInvalidCertificate)
	}
	dnsName := EncodePubKeyToDNS(pub)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: dnsName,
		},
		DNSNames:  []string{dnsName},
		NotBefore: time.Now().Add(-time.Minute),
		NotAfter:  time.Now().Add(validity),
		KeyUsage:  x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		PublicKeyAlgorithm:    x509.Ed25519,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// ValidateCertificate checks that cert is a current Ed25519 certificate whose
// only DNS name encodes its own public key, and returns that key.
func ValidateCertificate(cert *x509.Certificate) (ed25519.PublicKey, error) {
	if cert.SignatureAlgorithm != x509.PureEd25519 {
		return nil, fmt.Errorf("%w: signature algorithm is not Ed25519", ErrInvalidCertificate)
	}
	pubKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not Ed25519", ErrInvalidCertificate)
	}
	if len(cert.DNSNames) != 1 {
		return nil, fmt.Errorf("%w: want exactly one DNS name", ErrInvalidCertificate)
	}
	dnsName := cert.DNSNames[0]
	if !strings.HasPrefix(dnsName, DNSNamePrefix) || dnsName != EncodePubKeyToDNS(pubKey) {
		return nil, fmt.Errorf("%w: DNS name %q does not match public key", ErrInvalidCertificate, dnsName)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return nil, fmt.Errorf("%w: not yet valid", ErrInvalidCertificate)
	}
	if now.After(cert.NotAfter) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidCertificate)
	}
	return pubKey, nil
}
