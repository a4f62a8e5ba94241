package httpclient

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigureTLS(t *testing.T) {
	tr, err := ConfigureTLS(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.TLSClientConfig == nil || tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("Expected default TLS config")
	}

	tr, err = ConfigureTLS(&TLSConfig{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("Expected InsecureSkipVerify")
	}

	if _, err := ConfigureTLS(&TLSConfig{CACertificate: "/nonexistent/ca.pem"}); err == nil {
		t.Error("Expected error for missing CA file")
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ConfigureTLS(&TLSConfig{CACertificate: bad}); err == nil {
		t.Error("Expected error for invalid PEM")
	}
}
