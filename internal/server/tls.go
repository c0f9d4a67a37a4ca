package server

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

// loadPEM reads a certificate and its key. An encrypted key is decrypted with
// password and returned as plain PEM.
func loadPEM(certFile, keyFile, password string) ([]byte, []byte, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: certificate: %v", ErrTLSMaterial, err)
	}
	rawKey, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: key: %v", ErrTLSMaterial, err)
	}
	keyPEM, err := decryptKey(rawKey, password)
	if err != nil {
		return nil, nil, err
	}
	return certPEM, keyPEM, nil
}

const encryptedPKCS8Type = "ENCRYPTED PRIVATE KEY"

// decryptKey handles PKCS#8 encrypted keys ("openssl req -newkey ... -passout")
// and the legacy RFC 1423 headers of "openssl genrsa -aes256".
func decryptKey(data []byte, password string) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: key file holds no PEM block", ErrTLSMaterial)
	}
	if block.Type == encryptedPKCS8Type {
		return decryptPKCS8(block, password)
	}
	//nolint:staticcheck // RFC 1423 is insecure but still produced by common tooling.
	if !x509.IsEncryptedPEMBlock(block) {
		return data, nil
	}
	if password == "" {
		return nil, fmt.Errorf("%w: key is encrypted and no password is configured", ErrTLSMaterial)
	}

	//nolint:staticcheck // see above
	der, err := x509.DecryptPEMBlock(block, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt key: %v", ErrTLSMaterial, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

func decryptPKCS8(block *pem.Block, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: key is encrypted and no password is configured", ErrTLSMaterial)
	}
	key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt key: %v", ErrTLSMaterial, err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encode key: %v", ErrTLSMaterial, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func loadKeyPair(certFile, keyFile, password string) (tls.Certificate, error) {
	certPEM, keyPEM, err := loadPEM(certFile, keyFile, password)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrTLSMaterial, err)
	}
	return cert, nil
}
