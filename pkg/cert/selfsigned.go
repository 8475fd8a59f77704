package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/version"
)

// Validity is the lifetime of generated self-signed certificates.
const Validity = 10 * 365 * 24 * time.Hour

// Generate creates a self-signed ECDSA P-256 certificate for hostname.
// The hostname becomes both the common name and a SAN DNS name; any
// ipAddresses are added as SAN IP entries. Returns the certificate and
// key as PEM.
func Generate(hostname string, ipAddresses []string) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generating serial: %w", err)
	}

	var ips []net.IP
	for _, s := range ipAddresses {
		if ip := net.ParseIP(s); ip != nil {
			ips = append(ips, ip)
		}
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: hostname,
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		DNSNames:              []string{hostname},
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating certificate: %w", err)
	}

	keyPEM, err = EncodeKeyPEM(key)
	if err != nil {
		return nil, nil, err
	}
	return EncodeCertPEM(der), keyPEM, nil
}

// DNSNames returns the SAN DNS names of a PEM-encoded certificate.
func DNSNames(certPEM []byte) ([]string, error) {
	crt, err := DecodeCertPEM(certPEM)
	if err != nil {
		return nil, err
	}
	return crt.DNSNames, nil
}

// Ensure makes sure a usable certificate and key exist at the given
// paths. A new self-signed pair is generated when either file is
// missing or when the existing certificate does not cover hostname.
func Ensure(certPath, keyPath, hostname string) error {
	if fileExists(certPath) && fileExists(keyPath) {
		crt, err := ReadCertFile(certPath)
		if err == nil && coversHost(crt, hostname) {
			return nil
		}
	}

	certPEM, keyPEM, err := Generate(hostname, nil)
	if err != nil {
		return err
	}
	if err := WriteCertFile(certPath, certPEM); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}
	if err := WriteKeyFile(keyPath, keyPEM); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	return nil
}

// LoadTLSConfig builds a server TLS configuration from PEM files. The
// config advertises the protocol's ALPN identifiers.
func LoadTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   version.SupportedALPNProtocols(),
	}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func coversHost(crt *x509.Certificate, hostname string) bool {
	for _, name := range crt.DNSNames {
		if name == hostname {
			return true
		}
	}
	return false
}
