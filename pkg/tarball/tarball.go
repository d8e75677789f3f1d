// Package tarball packs a bot build directory into the tar stream the
// Docker daemon expects as a build context.
package tarball

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/pkg/archive"
)

// Pack tars a build directory, honoring its .dockerignore. The directory
// must contain a Dockerfile at its root.
func Pack(dir string) (io.ReadCloser, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve build directory: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("build directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build path %s is not a directory", abs)
	}

	dockerfile := filepath.Join(abs, "Dockerfile")
	if fi, err := os.Stat(dockerfile); err != nil || fi.IsDir() {
		return nil, fmt.Errorf("no Dockerfile found in %s", abs)
	}

	excludes, err := readDockerignore(abs)
	if err != nil {
		return nil, err
	}

	return archive.TarWithOptions(abs, &archive.TarOptions{
		ExcludePatterns: excludes,
	})
}

// readDockerignore parses .dockerignore in dir. A missing file means no
// exclusions.
func readDockerignore(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read .dockerignore: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read .dockerignore: %w", err)
	}

	return patterns, nil
}
