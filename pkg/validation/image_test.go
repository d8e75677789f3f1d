package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImageReference(t *testing.T) {
	tests := []struct {
		name     string
		imageRef string
		wantName string
		wantRef  string
	}{
		{
			name:     "simple image with latest tag",
			imageRef: "weatherbot:latest",
			wantName: "weatherbot",
			wantRef:  "latest",
		},
		{
			name:     "simple image with custom tag",
			imageRef: "weatherbot:v1.0.0",
			wantName: "weatherbot",
			wantRef:  "v1.0.0",
		},
		{
			name:     "simple image with digest",
			imageRef: "weatherbot@sha256:abc123def456",
			wantName: "weatherbot",
			wantRef:  "sha256:abc123def456",
		},
		{
			name:     "registry with image and tag",
			imageRef: "registry.example.com/weatherbot:latest",
			wantName: "registry.example.com/weatherbot",
			wantRef:  "latest",
		},
		{
			name:     "registry with port and image and tag",
			imageRef: "registry.example.com:5000/weatherbot:v1.0",
			wantName: "registry.example.com:5000/weatherbot",
			wantRef:  "v1.0",
		},
		{
			name:     "registry with port, image, and digest",
			imageRef: "registry.example.com:5000/weatherbot@sha256:abc123",
			wantName: "registry.example.com:5000/weatherbot",
			wantRef:  "sha256:abc123",
		},
		{
			name:     "simple image without tag (defaults to latest)",
			imageRef: "weatherbot",
			wantName: "weatherbot",
			wantRef:  "latest",
		},
		{
			name:     "nested path image with tag",
			imageRef: "registry.example.com/team/weatherbot:latest",
			wantName: "registry.example.com/team/weatherbot",
			wantRef:  "latest",
		},
		{
			name:     "localhost registry with port",
			imageRef: "localhost:5000/weatherbot:latest",
			wantName: "localhost:5000/weatherbot",
			wantRef:  "latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotName, gotRef := ParseImageReference(tt.imageRef)
			assert.Equal(t, tt.wantName, gotName, "name mismatch")
			assert.Equal(t, tt.wantRef, gotRef, "reference mismatch")
		})
	}
}

func TestValidateImageRef(t *testing.T) {
	valid := []string{
		"weatherbot",
		"weatherbot:latest",
		"myorg/weatherbot:v1.0.0",
		"registry.example.com/weatherbot:latest",
		"registry.example.com:5000/team/weatherbot:v2",
		"localhost:5000/weatherbot",
		"weatherbot@sha256:" + strings.Repeat("a", 64),
	}
	for _, ref := range valid {
		assert.NoError(t, ValidateImageRef(ref), "ref %q", ref)
	}

	invalid := []string{
		"",
		"Weatherbot:latest",
		"weather bot",
		"../etc/passwd",
		"weatherbot:bad tag",
		"weatherbot:",
		"my--org/bot",
	}
	for _, ref := range invalid {
		assert.Error(t, ValidateImageRef(ref), "ref %q", ref)
	}
}
