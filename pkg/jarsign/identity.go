package jarsign

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	gop12 "software.sslmate.com/src/go-pkcs12"
)

// SigningIdentity is a code signing identity: an X.509 certificate and the
// matching private key. The engine assumes the pairing is valid; a
// mismatched pair produces a signature block that fails verification.
type SigningIdentity struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.PrivateKey
}

// LoadSigningIdentity loads a signing identity from PKCS#12 data or from a
// PEM bundle containing both a certificate and a private key.
func LoadSigningIdentity(data []byte, password string) (*SigningIdentity, error) {
	if bytes.HasPrefix(data, []byte("-----BEGIN")) {
		return loadPEMIdentity(data)
	}

	privateKey, cert, _, err := gop12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode P12: %w", err)
	}
	return &SigningIdentity{Certificate: cert, PrivateKey: privateKey}, nil
}

// LoadIdentityFiles loads a signing identity from separate certificate and
// key files. The certificate may be PEM or DER; the key may be PEM (PKCS#1,
// PKCS#8, or EC) or a raw DER pk8 file as produced by openssl pkcs8.
func LoadIdentityFiles(certPath, keyPath string) (*SigningIdentity, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	cert, err := parseCertificate(certData)
	if err != nil {
		return nil, err
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := parsePrivateKey(keyData)
	if err != nil {
		return nil, err
	}

	if !keyMatchesCert(key, cert) {
		return nil, fmt.Errorf("private key does not match certificate public key")
	}
	return &SigningIdentity{Certificate: cert, PrivateKey: key}, nil
}

func loadPEMIdentity(pemData []byte) (*SigningIdentity, error) {
	var cert *x509.Certificate
	var key crypto.PrivateKey

	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			if cert == nil {
				c, err := x509.ParseCertificate(block.Bytes)
				if err != nil {
					return nil, fmt.Errorf("failed to parse certificate: %w", err)
				}
				cert = c
			}
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
			key = k
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
			key = k
		case "EC PRIVATE KEY":
			k, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
			key = k
		}
	}

	if cert == nil {
		return nil, fmt.Errorf("no certificate found in PEM data")
	}
	if key == nil {
		return nil, fmt.Errorf("no private key found in PEM data")
	}
	return &SigningIdentity{Certificate: cert, PrivateKey: key}, nil
}

func parseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func parsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	if block, _ := pem.Decode(data); block != nil {
		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "PRIVATE KEY":
			return x509.ParsePKCS8PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			return x509.ParseECPrivateKey(block.Bytes)
		default:
			return nil, fmt.Errorf("unsupported PEM type: %s", block.Type)
		}
	}
	// Raw DER, as in a .pk8 file.
	key, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// keyMatchesCert checks if a private key matches a certificate's public key
func keyMatchesCert(privateKey crypto.PrivateKey, cert *x509.Certificate) bool {
	switch priv := privateKey.(type) {
	case *rsa.PrivateKey:
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return priv.N.Cmp(pub.N) == 0 && priv.E == pub.E
		}
	}
	return false
}

// GenerateDebugIdentity creates a self-signed RSA identity for development
// signing. Archives signed with it verify against nothing but are useful
// for local install testing.
func GenerateDebugIdentity(commonName string) (*SigningIdentity, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"jarsigner debug"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(30, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}

	return &SigningIdentity{Certificate: cert, PrivateKey: priv}, nil
}
