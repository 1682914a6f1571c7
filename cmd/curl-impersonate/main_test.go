package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
	. "github.com/onsi/gomega"
)

// resetFlags restores the flag variables after a test changes them.
func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		flagMethod, flagData, flagImpersonate, flagConfig, flagSelect = "", "", "", "", ""
		flagHeaders, flagRawFlags = nil, nil
		flagText = false
	})
}

func TestRequestOptions(t *testing.T) {
	t.Run("data implies POST", func(t *testing.T) {
		g := NewGomegaWithT(t)
		resetFlags(t)
		flagData = "a=1"
		flagHeaders = []string{"X-One: 1", "X-Two:2"}

		opts, file, err := requestOptions()
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(file).To(BeNil())
		g.Expect(opts.Method).To(Equal(models.MethodPost))
		g.Expect(opts.Body).To(Equal("a=1"))
		g.Expect(opts.Headers).To(Equal(models.Headers{{Name: "X-One", Value: "1"}, {Name: "X-Two", Value: "2"}}))
		g.Expect(opts.Impersonate).To(Equal(models.TargetChrome116))
	})

	t.Run("bad header", func(t *testing.T) {
		g := NewGomegaWithT(t)
		resetFlags(t)
		flagHeaders = []string{"no separator"}

		_, _, err := requestOptions()
		g.Expect(err).To(HaveOccurred())
	})

	t.Run("config fills unset flags", func(t *testing.T) {
		g := NewGomegaWithT(t)
		resetFlags(t)
		path := filepath.Join(t.TempDir(), "impersonate.yaml")
		g.Expect(os.WriteFile(path, []byte("impersonate: firefox-109\ntransport: native\n"), 0o644)).To(Succeed())
		flagConfig = path

		opts, file, err := requestOptions()
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(opts.Method).To(Equal(models.MethodGet))
		g.Expect(opts.Impersonate).To(Equal(models.TargetFirefox109))
		g.Expect(file.Native()).To(BeTrue())
	})
}

func TestPrintResponse(t *testing.T) {
	resp := &models.Response{
		StatusCode:      200,
		Body:            "<html><body><h1> Hello </h1><p>a<b>b</b></p></body></html>",
		ResponseHeaders: models.Headers{{Name: "content-type", Value: "text/html"}},
	}

	t.Run("json", func(t *testing.T) {
		g := NewGomegaWithT(t)
		resetFlags(t)
		var buf bytes.Buffer
		g.Expect(printResponse(&buf, resp)).To(Succeed())
		g.Expect(buf.String()).To(ContainSubstring(`"statusCode": 200`))
		g.Expect(buf.String()).To(ContainSubstring(`"content-type": "text/html"`))
	})

	t.Run("select", func(t *testing.T) {
		g := NewGomegaWithT(t)
		resetFlags(t)
		flagSelect = "h1"
		var buf bytes.Buffer
		g.Expect(printResponse(&buf, resp)).To(Succeed())
		g.Expect(strings.Join(strings.Fields(buf.String()), "")).To(Equal(`["Hello"]`))
	})

	t.Run("text", func(t *testing.T) {
		g := NewGomegaWithT(t)
		resetFlags(t)
		flagText = true
		var buf bytes.Buffer
		g.Expect(printResponse(&buf, resp)).To(Succeed())
		g.Expect(buf.String()).ToNot(ContainSubstring("<"))
		g.Expect(buf.String()).To(ContainSubstring("Hello"))
	})
}

func TestListPresets(t *testing.T) {
	g := NewGomegaWithT(t)

	var buf bytes.Buffer
	g.Expect(listPresets(&buf, "linux", "arm64")).To(Succeed())
	out := buf.String()
	g.Expect(out).To(ContainSubstring("curl-impersonate-firefox-linux-aarch64"))
	g.Expect(out).To(ContainSubstring("chrome-110"))

	buf.Reset()
	g.Expect(listPresets(&buf, "windows", "amd64")).To(Succeed())
	g.Expect(buf.String()).To(ContainSubstring("unavailable"))
}
