package impersonate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate/config"
	"github.com/ditsuke/go-curl-impersonate/impersonate/instrumentation"
	"github.com/ditsuke/go-curl-impersonate/impersonate/internal/args"
	"github.com/ditsuke/go-curl-impersonate/impersonate/internal/platform"
	"github.com/ditsuke/go-curl-impersonate/impersonate/internal/preset"
	"github.com/ditsuke/go-curl-impersonate/impersonate/internal/validator"
	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
	"github.com/ditsuke/go-curl-impersonate/impersonate/runner"
	"github.com/ditsuke/go-curl-impersonate/impersonate/tlsclient"
)

// Errors. Every failure returned by Prepare and MakeRequest wraps one of these.
var (
	ErrInvalidMethod           = validator.ErrInvalidMethod
	ErrMethodBodyConflict      = validator.ErrMethodBodyConflict
	ErrInvalidURL              = validator.ErrInvalidURL
	ErrInvalidHeader           = validator.ErrInvalidHeader
	ErrUnsupportedPlatform     = platform.ErrUnsupportedPlatform
	ErrUnsupportedArchitecture = platform.ErrUnsupportedArchitecture
	ErrMissingBody             = args.ErrMissingBody
	ErrUnsupportedHTTPMethod   = errors.New("unsupported HTTP method")
	ErrSpawnFailure            = errors.New("curl-impersonate failed to run")
)

// PresetOutcome reports whether a request's impersonation target matched a preset.
type PresetOutcome = preset.Outcome

const (
	PresetNotRecognized = preset.NotRecognized
	PresetFound         = preset.Found
)

// Targets lists the impersonation targets that have a preset.
func Targets() []models.Target {
	return preset.Available()
}

// SelectBinary returns the binary name used for target on goos/goarch.
func SelectBinary(goos, goarch string, target models.Target) (string, error) {
	return platform.SelectBinary(goos, goarch, target)
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client) error

// WithRunner replaces the process runner, e.g. with a runner.Fixture in tests.
func WithRunner(r runner.Runner) ClientOption {
	return func(c *Client) error {
		if r == nil {
			return errors.New("runner cannot be nil")
		}
		c.runner = r
		return nil
	}
}

// WithNativeTransport performs requests in process with tls-client instead of running a
// curl-impersonate binary. Binary resolution still happens, so platform errors are reported
// the same way. A nil tlsOpts uses tlsclient defaults; an empty Target takes the client's
// impersonation target.
//
// Example:
//
//	client, err := NewClient(url, opts, WithNativeTransport(nil))
func WithNativeTransport(tlsOpts *tlsclient.Options) ClientOption {
	return func(c *Client) error {
		o := tlsclient.DefaultOptions()
		if tlsOpts != nil {
			copied := *tlsOpts
			o = &copied
		}
		if o.Target == "" {
			o.Target = c.opts.Impersonate
		}
		c.runner = tlsclient.NewRunner(o)
		return nil
	}
}

// WithLogger sets the structured logger used for per-request logging.
func WithLogger(logger logr.Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithPlatform overrides the operating system and architecture used to pick a binary.
// Values follow runtime.GOOS and runtime.GOARCH.
func WithPlatform(goos, goarch string) ClientOption {
	return func(c *Client) error {
		c.goos, c.goarch = goos, goarch
		return nil
	}
}

// WithInstallDir sets the directory binaries are loaded from when no override path is set.
func WithInstallDir(dir string) ClientOption {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("install dir cannot be empty")
		}
		c.installDir = dir
		return nil
	}
}

// WithStrictExit makes MakeRequest fail with ErrSpawnFailure when the binary cannot be started
// or exits with a non-zero status. By default such failures are logged and whatever output
// was captured is parsed.
func WithStrictExit() ClientOption {
	return func(c *Client) error {
		c.strictExit = true
		return nil
	}
}

// Client issues requests through a curl-impersonate binary. Its configuration is fixed at
// construction; only the default URL may change afterwards. A Client is safe for concurrent use.
type Client struct {
	opts               models.RequestOptions
	binaryOverridePath string
	installDir         string
	runner             runner.Runner
	logger             logr.Logger
	goos               string
	goarch             string
	strictExit         bool
	// muURL protects the default URL.
	muURL struct {
		sync.RWMutex
		url string
	}
}

// NewClient creates a Client for url. opts is copied, so later changes by the caller have no
// effect. The CURL_IMPERSONATE_BINARY_PATH environment variable is read here, once;
// opts.BinaryOverridePath takes precedence over it.
func NewClient(url string, opts models.RequestOptions, options ...ClientOption) (*Client, error) {
	c := &Client{
		opts:       opts.Clone(),
		installDir: platform.DefaultInstallDir(),
		runner:     runner.NewShell(),
		logger:     klog.NewKlogr(),
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
	}
	c.muURL.url = url

	c.binaryOverridePath = opts.BinaryOverridePath
	if c.binaryOverridePath == "" {
		c.binaryOverridePath = config.BinaryOverridePath()
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	klog.V(2).Infof("NewClient: target=%q platform=%s/%s binaryDir=%q", c.opts.Impersonate, c.goos, c.goarch, c.binaryDir())
	return c, nil
}

func (c *Client) binaryDir() string {
	if c.binaryOverridePath != "" {
		return c.binaryOverridePath
	}
	return c.installDir
}

// URL returns the default URL.
func (c *Client) URL() string {
	c.muURL.RLock()
	defer c.muURL.RUnlock()
	return c.muURL.url
}

// SetNewURL replaces the default URL used by MakeRequest calls that pass no URL.
func (c *Client) SetNewURL(url string) {
	c.muURL.Lock()
	defer c.muURL.Unlock()
	c.muURL.url = url
}

// ValidateOptions checks opts against the client's default URL. It returns nil when the options
// are usable and an error naming the violated rule otherwise.
func (c *Client) ValidateOptions(opts models.RequestOptions) error {
	return validator.Options(opts, c.URL())
}

// RequestContext is the state of a single request, built fresh by Prepare. The client never
// keeps a reference to it.
type RequestContext struct {
	ID     string
	URL    string
	Method models.Method
	// Headers are the caller's headers with the preset merged in.
	Headers models.Headers
	// RequestHeaders are the caller's headers as given.
	RequestHeaders models.Headers
	// Flags are the final flags, ending in the verbose flag.
	Flags      []string
	Preset     PresetOutcome
	Binary     string
	BinaryPath string
	Command    runner.Command
	Body       *string
	Verbose    bool
}

// Prepare validates the client's options against url, or the default URL when url is empty,
// and builds the invocation. It has no side effects besides marking the binary executable.
func (c *Client) Prepare(ctx context.Context, url string) (*RequestContext, error) {
	if url == "" {
		url = c.URL()
	}
	opts := c.opts.Clone()

	if err := validator.Options(opts, url); err != nil {
		return nil, err
	}
	opts.Method, _ = validator.Method(opts.Method)

	binary, err := platform.SelectBinary(c.goos, c.goarch, opts.Impersonate)
	if err != nil {
		return nil, err
	}
	binaryPath := platform.BinaryPath(c.binaryOverridePath, c.installDir, binary)
	if _, err := platform.MakeExecutable(binaryPath); err != nil {
		klog.Warningf("Prepare: could not mark %s executable: %v", binaryPath, err)
	}

	lookup := preset.Merge(&opts)
	instrumentation.RecordPresetLookup(ctx, string(opts.Impersonate), lookup.Outcome.String())

	switch opts.Method {
	case models.MethodGet, models.MethodPost:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHTTPMethod, opts.Method)
	}

	flags := append(append([]string(nil), opts.Flags...), args.OptionFlags(opts.Timeout, opts.FollowRedirects)...)
	built, err := args.Build(opts.Method, flags, opts.Headers, url, opts.Body)
	if err != nil {
		return nil, err
	}

	return &RequestContext{
		ID:             uuid.NewString(),
		URL:            url,
		Method:         opts.Method,
		Headers:        opts.Headers,
		RequestHeaders: c.opts.Headers.Clone(),
		Flags:          built.Flags,
		Preset:         lookup.Outcome,
		Binary:         binary,
		BinaryPath:     binaryPath,
		Command: runner.Command{
			Path: binaryPath,
			Line: built.String(),
			Argv: built.Argv(),
		},
		Body:    built.Body,
		Verbose: opts.Verbose,
	}, nil
}
