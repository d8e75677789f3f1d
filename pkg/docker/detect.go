package docker

import (
	"os"
	"strings"
)

func fileExists(filepath string) bool {
	_, err := os.Stat(filepath)
	return !os.IsNotExist(err)
}

func IsRunningInContainer() bool {
	return fileExists("/.iscontainer") || fileExists("/.dockerenv")
}

// podmanSocketPaths are the locations a Podman socket usually lives,
// including the rootless per-user one.
var podmanSocketPaths = []string{
	"/run/podman/podman.sock",
	"/var/run/podman/podman.sock",
	"/run/user/1000/podman/podman.sock",
}

// DetectPodman probes the usual Podman socket locations and reports the
// first one that exists. Used to auto-enable Podman support when no engine
// was configured explicitly.
func DetectPodman() (bool, string) {
	paths := podmanSocketPaths
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, home+"/.local/podman/podman.sock")
	}

	for _, path := range paths {
		if fileExists(path) {
			return true, path
		}
	}
	return false, ""
}

// IsPodmanSocket guesses from the path whether a socket belongs to Podman.
func IsPodmanSocket(socketPath string) bool {
	return socketPath != "" && strings.Contains(socketPath, "podman")
}
