package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

var (
	ErrUnsupportedPlatform     = errors.New("unsupported platform")
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
)

const binaryPrefix = "curl-impersonate"

// Architecture names accepted for each binary flavour. Node-style names are accepted too.
var (
	x86Arches   = []string{"amd64", "x64"}
	arm64Arches = []string{"arm64", "aarch64"}
)

// SelectBinary maps an operating system, architecture and impersonation target to a binary name.
// Every darwin architecture maps to the x86 build.
func SelectBinary(goos, goarch string, target models.Target) (string, error) {
	family := "chrome"
	if target.IsFirefox() {
		family = "firefox"
	}

	switch goos {
	case "linux":
		switch {
		case lo.Contains(x86Arches, goarch):
			return binaryName(family, "linux", "x86"), nil
		case lo.Contains(arm64Arches, goarch):
			return binaryName(family, "linux", "aarch64"), nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, goarch)
	case "darwin":
		return binaryName(family, "darwin", "x86"), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
}

func binaryName(family, goos, arch string) string {
	return fmt.Sprintf("%s-%s-%s-%s", binaryPrefix, family, goos, arch)
}

// BinaryPath joins name onto overrideDir when set, otherwise onto installDir.
func BinaryPath(overrideDir, installDir, name string) string {
	if overrideDir != "" {
		return filepath.Join(overrideDir, name)
	}
	return filepath.Join(installDir, name)
}

// DefaultInstallDir is the bin directory next to the running executable, or "bin" relative to
// the working directory when the executable cannot be located.
func DefaultInstallDir() string {
	exe, err := os.Executable()
	if err != nil {
		klog.Warningf("platform: cannot locate executable, using ./bin: %s", err)
		return "bin"
	}
	return filepath.Join(filepath.Dir(exe), "bin")
}

// MakeExecutable sets mode 0755 on path if it exists. A missing file is not an error: the
// invocation that follows fails on its own. It reports whether the file was found.
func MakeExecutable(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		klog.V(2).Infof("platform: binary %s not found, skipping chmod", path)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Mode().Perm() == 0o755 {
		return true, nil
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return true, fmt.Errorf("failed to mark %s executable: %w", path, err)
	}
	return true, nil
}
