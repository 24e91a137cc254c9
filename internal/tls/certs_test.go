package tls

import (
	"path/filepath"
	"testing"
)

func TestGenerateSelfSignedCertRoundTrip(t *testing.T) {
	cfg := DefaultCertConfig()
	cfg.CommonName = "node-1"

	certPEM, keyPEM, err := GenerateSelfSignedCert(cfg)
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		t.Fatal("expected non-empty cert and key PEM")
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := SaveCertificates(certPath, keyPath, certPEM, keyPEM); err != nil {
		t.Fatalf("SaveCertificates: %v", err)
	}

	if err := ValidateCertificate(certPath); err != nil {
		t.Fatalf("ValidateCertificate: %v", err)
	}

	tlsCfg, err := LoadTLSConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadTLSConfig: %v", err)
	}
	if len(tlsCfg.Certificates) != 1 {
		t.Fatalf("Certificates = %d, want 1", len(tlsCfg.Certificates))
	}
}

func TestLoadPeerTLSConfigRequiresClientCert(t *testing.T) {
	cfg := DefaultCertConfig()
	certPEM, keyPEM, err := GenerateSelfSignedCert(cfg)
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := SaveCertificates(certPath, keyPath, certPEM, keyPEM); err != nil {
		t.Fatalf("SaveCertificates: %v", err)
	}

	peerCertPEM, _, err := GenerateSelfSignedCert(DefaultCertConfig())
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert (peer): %v", err)
	}

	tlsCfg, err := LoadPeerTLSConfig(certPath, keyPath, [][]byte{peerCertPEM})
	if err != nil {
		t.Fatalf("LoadPeerTLSConfig: %v", err)
	}
	if tlsCfg.ClientAuth.String() != "RequireAndVerifyClientCert" {
		t.Fatalf("ClientAuth = %v, want RequireAndVerifyClientCert", tlsCfg.ClientAuth)
	}
	if tlsCfg.ClientCAs == nil || tlsCfg.RootCAs == nil {
		t.Fatal("expected ClientCAs and RootCAs to be populated from trustedPeers")
	}
}

func TestLoadPeerTLSConfigRejectsGarbageTrustedPeer(t *testing.T) {
	cfg := DefaultCertConfig()
	certPEM, keyPEM, err := GenerateSelfSignedCert(cfg)
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := SaveCertificates(certPath, keyPath, certPEM, keyPEM); err != nil {
		t.Fatalf("SaveCertificates: %v", err)
	}

	_, err = LoadPeerTLSConfig(certPath, keyPath, [][]byte{[]byte("not a certificate")})
	if err == nil {
		t.Fatal("expected an error for an unparseable trusted peer certificate")
	}
}
