package validation

import (
	"path/filepath"
	"testing"
)

func TestValidatePathWithinRoot(t *testing.T) {
	root := "/var/lib/botdock/certs"

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"direct child", root + "/example.com.crt", false},
		{"nested child", root + "/example.com/privkey.pem", false},
		{"root itself", root, false},

		{"sibling escape", "/var/lib/botdock/certs-evil/x", true},
		{"traversal escape", root + "/../../../etc/passwd", true},
		{"unrelated path", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinRoot(root, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinRoot(%q, %q) error = %v, wantErr %v", root, tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathWithinRootDomainInput(t *testing.T) {
	// A domain string that tries to climb out of the TLS directory must be
	// rejected once joined.
	root := "/var/lib/botdock/certs"
	for _, domain := range []string{"../secrets", "a/../../b"} {
		full := filepath.Join(root, domain+".crt")
		if err := ValidatePathWithinRoot(root, full); err == nil {
			t.Errorf("expected escape for %q to be caught", domain)
		}
	}
}
