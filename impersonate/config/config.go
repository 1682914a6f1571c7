// Package config loads request defaults from dotenv and YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

// EnvBinaryPath names the environment variable holding a directory to load binaries from.
const EnvBinaryPath = "CURL_IMPERSONATE_BINARY_PATH"

// Transport values accepted in a config file.
const (
	TransportShell  = "shell"
	TransportNative = "native"
)

// LoadEnv loads the given dotenv files into the process environment, defaulting to ".env".
// Missing files are skipped; variables already set are left alone.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				klog.V(3).Infof("config: no dotenv file at %s", f)
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		klog.V(2).Infof("config: loaded dotenv file %s", f)
	}
	return nil
}

// BinaryOverridePath returns the binary directory set in the environment, if any.
func BinaryOverridePath() string {
	return strings.TrimSpace(os.Getenv(EnvBinaryPath))
}

// File is the YAML request-defaults file.
//
//	impersonate: firefox-117
//	binaryPath: /opt/curl-impersonate/bin
//	transport: shell
//	timeout: 15s
//	followRedirects: true
//	headers:
//	  Accept-Language: en-GB
//	flags: [--compressed]
type File struct {
	Impersonate     models.Target  `yaml:"impersonate"`
	BinaryPath      string         `yaml:"binaryPath"`
	Transport       string         `yaml:"transport"`
	Timeout         string         `yaml:"timeout"`
	FollowRedirects bool           `yaml:"followRedirects"`
	Verbose         bool           `yaml:"verbose"`
	Headers         OrderedHeaders `yaml:"headers"`
	Flags           []string       `yaml:"flags"`
}

// OrderedHeaders decodes a YAML mapping into headers, keeping document order.
type OrderedHeaders models.Headers

func (h *OrderedHeaders) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: headers must be a mapping", node.Line)
	}
	headers := make(models.Headers, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: header %q must have a scalar value", value.Line, key.Value)
		}
		headers.Set(key.Value, value.Value)
	}
	*h = OrderedHeaders(headers)
	return nil
}

// Load reads and validates a config file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a config document. Unknown keys are rejected.
func Parse(raw []byte) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch f.Transport {
	case "", TransportShell, TransportNative:
	default:
		return nil, fmt.Errorf("unknown transport %q, expected %s or %s", f.Transport, TransportShell, TransportNative)
	}
	if _, err := f.timeout(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) timeout() (time.Duration, error) {
	if f.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 0, fmt.Errorf("bad timeout %q: %w", f.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("bad timeout %q: negative", f.Timeout)
	}
	return d, nil
}

// Native reports whether requests should go through the in-process transport.
func (f *File) Native() bool {
	return f.Transport == TransportNative
}

// Apply fills the zero fields of opts from the file. Values already set on opts win, and
// headers from opts take precedence over file headers of the same name.
func (f *File) Apply(opts *models.RequestOptions) {
	if opts.Impersonate == "" {
		opts.Impersonate = f.Impersonate
	}
	if opts.BinaryOverridePath == "" {
		opts.BinaryOverridePath = f.BinaryPath
	}
	if opts.Timeout == 0 {
		opts.Timeout, _ = f.timeout()
	}
	opts.FollowRedirects = opts.FollowRedirects || f.FollowRedirects
	opts.Verbose = opts.Verbose || f.Verbose
	if len(f.Headers) > 0 {
		opts.Headers = models.Headers(f.Headers).Merge(opts.Headers)
	}
	if len(opts.Flags) == 0 && len(f.Flags) > 0 {
		opts.Flags = append([]string(nil), f.Flags...)
	}
}
