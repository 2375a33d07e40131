package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates a required directory or binary is absent.
var ErrNotFound = errors.New("not found")

// ResolveHomeDir locates the installation directory of an external tool.
// An explicit <NAME>_HOME environment variable wins; otherwise the
// conventional <binDir>/<name>-home location is used. The directory must
// exist.
func ResolveHomeDir(name, binDir string) (string, error) {
	envKey := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_HOME"

	dir := os.Getenv(envKey)
	if dir == "" {
		dir = filepath.Join(binDir, name+"-home")
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: home directory for %s at %s (set %s to override)",
			ErrNotFound, name, dir, envKey)
	}
	return dir, nil
}

// ResolveBinary verifies a node binary exists before any process is
// spawned, so a bad path fails the build up front instead of surfacing as
// a launch failure halfway through. Bare names are resolved via PATH;
// paths are checked directly.
func ResolveBinary(path string) (string, error) {
	if strings.ContainsRune(path, os.PathSeparator) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: binary %s", ErrNotFound, path)
		}
		return path, nil
	}

	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: binary %s in PATH", ErrNotFound, path)
	}
	return resolved, nil
}
