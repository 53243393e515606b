package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cert == nil {
		t.Fatal("certificate is nil")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	if leaf.Subject.CommonName != "localhost" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "localhost")
	}
	if len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "localhost" {
		t.Errorf("DNS SANs: got %v, want [localhost]", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IP SANs: got %v, want [127.0.0.1]", leaf.IPAddresses)
	}

	validDuration := leaf.NotAfter.Sub(leaf.NotBefore)
	expectedDuration := 365 * 24 * time.Hour
	if validDuration < expectedDuration-time.Hour || validDuration > expectedDuration+time.Hour {
		t.Errorf("validity duration: got %v, want approximately %v", validDuration, expectedDuration)
	}

	ecKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		t.Fatal("public key is not ECDSA")
	}
	if ecKey.Curve != elliptic.P256() {
		t.Errorf("curve: got %v, want P-256", ecKey.Curve.Params().Name)
	}
}

func TestServerConfig_SelfSigned(t *testing.T) {
	t.Parallel()

	cfg, cert, err := ServerConfig("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates: got %d, want 1", len(cfg.Certificates))
	}
	if cfg.MinVersion != standardtls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want TLS 1.2 (%d)", cfg.MinVersion, standardtls.VersionTLS12)
	}
	if cert == nil || len(cert.Certificate) == 0 {
		t.Fatal("returned certificate is empty")
	}
}

func TestServerConfig_FileNotFound(t *testing.T) {
	t.Parallel()

	_, _, err := ServerConfig("/nonexistent/cert.pem", "/nonexistent/key.pem")
	if err == nil {
		t.Error("expected error for nonexistent files, got nil")
	}
}

func TestCertPool(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool, err := CertPool(cert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"}); err != nil {
		t.Errorf("leaf does not verify against its own pool: %v", err)
	}
}

func TestCertPool_Empty(t *testing.T) {
	t.Parallel()

	if _, err := CertPool(nil); err == nil {
		t.Error("expected error for nil certificate, got nil")
	}
	if _, err := CertPool(&standardtls.Certificate{}); err == nil {
		t.Error("expected error for empty certificate, got nil")
	}
}

func writeCA(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}
	return path
}

func TestClientConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := ClientConfig("", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinVersion != standardtls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want %d", cfg.MinVersion, standardtls.VersionTLS12)
	}
	if cfg.RootCAs != nil {
		t.Error("RootCAs: expected nil (system roots)")
	}
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify: got true, want false")
	}
}

func TestClientConfig_Insecure(t *testing.T) {
	t.Parallel()

	cfg, err := ClientConfig("", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify: got false, want true")
	}
}

func TestClientConfig_CAFile(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := writeCA(t, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}))

	cfg, err := ClientConfig(path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatal("RootCAs: got nil")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{Roots: cfg.RootCAs, DNSName: "localhost"}); err != nil {
		t.Errorf("certificate from CA file is not trusted: %v", err)
	}
}

func TestClientConfig_CAFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := ClientConfig("/nonexistent/ca.pem", false); err == nil {
		t.Error("expected error for missing CA file, got nil")
	}

	path := writeCA(t, []byte("not a certificate"))
	if _, err := ClientConfig(path, false); err == nil {
		t.Error("expected error for CA file without certificates, got nil")
	}
}
