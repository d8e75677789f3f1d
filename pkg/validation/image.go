package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Repository name validation per Docker spec:
// - Lowercase letters, digits, and separators (., _, -)
// - Separators must not be adjacent and cannot start/end the name
// - Allows nested paths like "myorg/mybot"
var repoNameRegex = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*$`)

// Tag validation per Docker spec: alphanumeric first char, then dots,
// underscores and hyphens, max 128 chars.
var tagRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// Digest validation: algorithm:hex with sha256 or sha512.
var digestRegex = regexp.MustCompile(`^(sha256:[a-f0-9]{64}|sha512:[a-f0-9]{128})$`)

// ParseImageReference parses an image reference into name and tag/digest.
// Supports formats:
//   - image:tag (default tag is "latest")
//   - image@sha256:... (digest)
//   - image (defaults to "latest")
//   - registry.example.com/image:tag
//   - registry.example.com:5000/image:tag
func ParseImageReference(imageRef string) (string, string) {
	// Digest reference (@sha256:...)
	if idx := strings.Index(imageRef, "@sha256:"); idx != -1 {
		return imageRef[:idx], imageRef[idx+1:]
	}

	if idx := strings.Index(imageRef, ":"); idx != -1 {
		// A slash after the colon means the colon belongs to a registry
		// port (registry:5000/image), so look for the tag colon after it.
		if slashIdx := strings.Index(imageRef, "/"); slashIdx != -1 && slashIdx > idx {
			if tagIdx := strings.Index(imageRef[slashIdx:], ":"); tagIdx != -1 {
				actualTagIdx := slashIdx + tagIdx
				return imageRef[:actualTagIdx], imageRef[actualTagIdx+1:]
			}
			return imageRef, "latest"
		}
		return imageRef[:idx], imageRef[idx+1:]
	}

	return imageRef, "latest"
}

// ValidateImageRef validates a complete image reference before it goes to
// the Docker daemon. The registry host portion (if any) is not validated
// beyond basic shape since the daemon resolves it.
func ValidateImageRef(imageRef string) error {
	if imageRef == "" {
		return fmt.Errorf("image reference cannot be empty")
	}

	if strings.Contains(imageRef, "..") {
		return fmt.Errorf("image reference contains path traversal sequence")
	}

	name, ref := ParseImageReference(imageRef)

	// Strip a registry prefix (anything with a dot or colon in the first
	// path component) before applying the repository name rules.
	repo := name
	if slashIdx := strings.Index(name, "/"); slashIdx != -1 {
		first := name[:slashIdx]
		if strings.ContainsAny(first, ".:") || first == "localhost" {
			repo = name[slashIdx+1:]
		}
	}

	if !repoNameRegex.MatchString(repo) {
		return fmt.Errorf("invalid image name %q: must contain only lowercase letters, digits, and separators (., _, -)", repo)
	}

	if digestRegex.MatchString(ref) {
		return nil
	}
	if !tagRegex.MatchString(ref) {
		return fmt.Errorf("invalid image tag %q", ref)
	}

	return nil
}
