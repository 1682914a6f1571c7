package platform_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ditsuke/go-curl-impersonate/impersonate/internal/platform"
	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
	. "github.com/onsi/gomega"
)

func TestSelectBinary(t *testing.T) {
	testCases := []struct {
		name     string
		goos     string
		goarch   string
		target   models.Target
		expected string
		err      error
	}{
		{name: "linux x64 chrome", goos: "linux", goarch: "amd64", target: models.TargetChrome110, expected: "curl-impersonate-chrome-linux-x86"},
		{name: "linux x64 node name", goos: "linux", goarch: "x64", target: models.TargetChrome110, expected: "curl-impersonate-chrome-linux-x86"},
		{name: "linux x64 firefox", goos: "linux", goarch: "amd64", target: models.TargetFirefox109, expected: "curl-impersonate-firefox-linux-x86"},
		{name: "linux arm64 firefox", goos: "linux", goarch: "arm64", target: models.TargetFirefox117, expected: "curl-impersonate-firefox-linux-aarch64"},
		{name: "linux arm64 chrome", goos: "linux", goarch: "arm64", target: models.TargetChrome116, expected: "curl-impersonate-chrome-linux-aarch64"},
		{name: "linux no target uses chrome", goos: "linux", goarch: "amd64", target: "", expected: "curl-impersonate-chrome-linux-x86"},
		{name: "darwin arm64 maps to x86", goos: "darwin", goarch: "arm64", target: models.TargetChrome110, expected: "curl-impersonate-chrome-darwin-x86"},
		{name: "darwin firefox", goos: "darwin", goarch: "amd64", target: models.TargetFirefox117, expected: "curl-impersonate-firefox-darwin-x86"},
		{name: "linux 386", goos: "linux", goarch: "386", target: models.TargetChrome110, err: platform.ErrUnsupportedArchitecture},
		{name: "windows", goos: "windows", goarch: "amd64", target: models.TargetChrome110, err: platform.ErrUnsupportedPlatform},
		{name: "win32", goos: "win32", goarch: "x64", target: models.TargetFirefox117, err: platform.ErrUnsupportedPlatform},
		{name: "win32 arm", goos: "win32", goarch: "mips", target: "", err: platform.ErrUnsupportedPlatform},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			name, err := platform.SelectBinary(tc.goos, tc.goarch, tc.target)
			if tc.err != nil {
				g.Expect(err).To(MatchError(tc.err))
				g.Expect(name).To(BeEmpty())
				return
			}
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(name).To(Equal(tc.expected))
		})
	}
}

func TestBinaryPath(t *testing.T) {
	g := NewGomegaWithT(t)
	g.Expect(platform.BinaryPath("/opt/ci", "/usr/lib/bin", "b")).To(Equal(filepath.Join("/opt/ci", "b")))
	g.Expect(platform.BinaryPath("", "/usr/lib/bin", "b")).To(Equal(filepath.Join("/usr/lib/bin", "b")))
}

func TestMakeExecutable(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		g := NewGomegaWithT(t)
		found, err := platform.MakeExecutable(filepath.Join(t.TempDir(), "absent"))
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(found).To(BeFalse())
	})

	t.Run("existing file", func(t *testing.T) {
		g := NewGomegaWithT(t)
		path := filepath.Join(t.TempDir(), "curl-impersonate-chrome-linux-x86")
		g.Expect(os.WriteFile(path, []byte("#!/bin/sh\n"), 0o600)).To(Succeed())

		found, err := platform.MakeExecutable(path)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(found).To(BeTrue())

		info, err := os.Stat(path)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o755)))

		// Idempotent.
		found, err = platform.MakeExecutable(path)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(found).To(BeTrue())
	})
}
