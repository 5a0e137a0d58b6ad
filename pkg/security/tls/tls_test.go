package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
)

// writeCert writes a self-signed certificate for cn valid over
// [notBefore, notAfter] and returns the file paths.
func writeCert(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}

	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func validWindow() (time.Time, time.Time) {
	now := time.Now()
	return now.Add(-time.Hour), now.Add(90 * 24 * time.Hour)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	from, to := validWindow()
	certPath, keyPath := writeCert(t, dir, "pescanner.test", from, to)

	tests := []struct {
		name    string
		cfg     config.TLSConfig
		wantMin uint16
		wantErr bool
	}{
		{"tls 1.3", config.TLSConfig{CertFile: certPath, KeyFile: keyPath, MinVersion: "1.3"}, cryptotls.VersionTLS13, false},
		{"tls 1.2", config.TLSConfig{CertFile: certPath, KeyFile: keyPath, MinVersion: "1.2"}, cryptotls.VersionTLS12, false},
		{"default version", config.TLSConfig{CertFile: certPath, KeyFile: keyPath}, cryptotls.VersionTLS13, false},
		{"tls 1.0", config.TLSConfig{CertFile: certPath, KeyFile: keyPath, MinVersion: "1.0"}, 0, true},
		{"missing cert", config.TLSConfig{KeyFile: keyPath}, 0, true},
		{"missing key", config.TLSConfig{CertFile: certPath}, 0, true},
		{"nonexistent files", config.TLSConfig{CertFile: filepath.Join(dir, "nope.crt"), KeyFile: keyPath}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tlsCfg, reloader, err := New(tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if tlsCfg.MinVersion != tt.wantMin {
				t.Errorf("MinVersion = %x, want %x", tlsCfg.MinVersion, tt.wantMin)
			}
			if reloader.GetCertificate() == nil {
				t.Error("no certificate loaded")
			}
		})
	}
}

func TestNew_ExpiredCertificate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certPath, keyPath := writeCert(t, dir, "old", now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	if _, _, err := New(config.TLSConfig{CertFile: certPath, KeyFile: keyPath}, nil); err == nil {
		t.Fatal("expected error for expired certificate")
	}
}

func TestValidateCertificate(t *testing.T) {
	if _, err := ValidateCertificate(nil, time.Now()); err == nil {
		t.Error("expected error for nil certificate")
	}
	if _, err := ValidateCertificate(&cryptotls.Certificate{}, time.Now()); err == nil {
		t.Error("expected error for empty chain")
	}
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		notAfter time.Time
		wantDays int
		wantSoon bool
	}{
		{"far", now.Add(90 * 24 * time.Hour), 90, false},
		{"boundary", now.Add(30 * 24 * time.Hour), 30, false},
		{"soon", now.Add(10 * 24 * time.Hour), 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, soon := DaysUntilExpiry(&x509.Certificate{NotAfter: tt.notAfter}, now)
			if days != tt.wantDays || soon != tt.wantSoon {
				t.Errorf("DaysUntilExpiry() = (%d, %t), want (%d, %t)", days, soon, tt.wantDays, tt.wantSoon)
			}
		})
	}
}

func TestCertificateReloader_CheckNow(t *testing.T) {
	dir := t.TempDir()
	from, to := validWindow()
	certPath, keyPath := writeCert(t, dir, "first", from, to)

	_, reloader, err := New(config.TLSConfig{CertFile: certPath, KeyFile: keyPath}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if reloader.CheckNow() {
		t.Error("CheckNow() reloaded unchanged files")
	}

	writeCert(t, dir, "second", from, to)
	future := time.Now().Add(time.Minute)
	for _, p := range []string{certPath, keyPath} {
		if err := os.Chtimes(p, future, future); err != nil {
			t.Fatal(err)
		}
	}

	if !reloader.CheckNow() {
		t.Fatal("CheckNow() did not pick up the renewed certificate")
	}
	leaf, err := x509.ParseCertificate(reloader.GetCertificate().Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if leaf.Subject.CommonName != "second" {
		t.Errorf("CommonName = %q, want %q", leaf.Subject.CommonName, "second")
	}
}

func TestCertificateReloader_BadRenewalKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	from, to := validWindow()
	certPath, keyPath := writeCert(t, dir, "good", from, to)

	_, reloader, err := New(config.TLSConfig{CertFile: certPath, KeyFile: keyPath}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	before := reloader.GetCertificate()

	if err := os.WriteFile(certPath, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(certPath, future, future); err != nil {
		t.Fatal(err)
	}

	if reloader.CheckNow() {
		t.Error("CheckNow() accepted a broken certificate")
	}
	if reloader.GetCertificate() != before {
		t.Error("previous certificate was replaced")
	}
}

func TestCertificateReloader_RunStopsOnCancel(t *testing.T) {
	r := NewCertificateReloader("a", "b", 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_ServesHTTPS(t *testing.T) {
	dir := t.TempDir()
	from, to := validWindow()
	certPath, keyPath := writeCert(t, dir, "127.0.0.1", from, to)

	tlsCfg, reloader, err := New(config.TLSConfig{CertFile: certPath, KeyFile: keyPath, MinVersion: "1.2"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
		ReadHeaderTimeout: time.Second,
	}
	go func() { _ = srv.Serve(cryptotls.NewListener(ln, tlsCfg)) }()
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(mustLeaf(t, reloader.GetCertificate()))
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &cryptotls.Config{RootCAs: pool}}}

	resp, err := client.Get("https://" + ln.Addr().String())
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func mustLeaf(t *testing.T, cert *cryptotls.Certificate) *x509.Certificate {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf
}
