package tlsclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
	"github.com/ditsuke/go-curl-impersonate/impersonate/runner"
)

// ProfileRotationMode determines how a profile is picked when the target has no profile of its own
type ProfileRotationMode int

const (
	// ProfileRotationOff uses the first default profile
	ProfileRotationOff ProfileRotationMode = iota
	// ProfileRotationRandom selects a random default profile for each request
	ProfileRotationRandom
	// ProfileRotationSequential rotates through the default profiles in order
	ProfileRotationSequential
)

type namedProfile struct {
	name    string
	profile profiles.ClientProfile
}

var (
	// targetProfiles maps impersonation targets to the closest tls-client profile.
	targetProfiles = map[models.Target]namedProfile{
		models.TargetChrome110:  {"Chrome_110", profiles.Chrome_110},
		models.TargetChrome116:  {"Chrome_116_PSK", profiles.Chrome_116_PSK},
		models.TargetFirefox109: {"Firefox_110", profiles.Firefox_110},
		models.TargetFirefox117: {"Firefox_117", profiles.Firefox_117},
	}

	// defaultProfiles are used for targets without a mapping
	defaultProfiles = []namedProfile{
		{"Chrome_133", profiles.Chrome_133},
		{"Chrome_131", profiles.Chrome_131},
		{"Firefox_135", profiles.Firefox_135},
		{"Firefox_133", profiles.Firefox_133},
	}

	currentProfileIndex int
	profileMutex        sync.Mutex
)

// Options configures the in-process runner.
type Options struct {
	// Target selects the browser profile. Unknown targets fall back to ProfileRotationMode.
	Target              models.Target
	ProfileRotationMode ProfileRotationMode
	// Timeout applies when the command carries no --max-time flag.
	Timeout time.Duration
}

// DefaultOptions returns sensible defaults for the runner
func DefaultOptions() *Options {
	return &Options{
		ProfileRotationMode: ProfileRotationOff,
		Timeout:             30 * time.Second,
	}
}

func selectProfile(opts *Options) namedProfile {
	if p, ok := targetProfiles[opts.Target]; ok {
		return p
	}

	switch opts.ProfileRotationMode {
	case ProfileRotationRandom:
		return defaultProfiles[rand.Intn(len(defaultProfiles))]
	case ProfileRotationSequential:
		profileMutex.Lock()
		defer profileMutex.Unlock()
		p := defaultProfiles[currentProfileIndex%len(defaultProfiles)]
		currentProfileIndex++
		return p
	default:
		return defaultProfiles[0]
	}
}

// Runner executes curl-style argument vectors in process with tls-client, writing the response
// body to Stdout and a curl-like verbose trace to Stderr. It needs no binary on disk.
type Runner struct {
	opts     *Options
	resolver *net.Resolver
}

// NewRunner creates a Runner. A nil opts uses DefaultOptions.
func NewRunner(opts *Options) *Runner {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Runner{opts: opts, resolver: net.DefaultResolver}
}

// invocation is the subset of curl arguments the runner understands.
type invocation struct {
	method   string
	url      string
	headers  models.Headers
	body     *string
	follow   bool
	insecure bool
	proxy    string
	timeout  time.Duration
}

// flags taking a value that the runner has no use for.
var valueFlags = map[string]bool{
	"--ciphers": true, "--curves": true, "--signature-hashes": true, "--cert-compression": true,
	"--http2-pseudo-headers-order": true, "--http2-settings": true, "--http2-window-update": true,
	"--http2-stream-weight": true, "--http2-stream-exclusive": true, "--tls-extension-order": true,
	"--connect-timeout": true, "-A": true, "--user-agent": true, "-e": true, "--referer": true,
	"-o": true, "--output": true, "-u": true, "--user": true, "-b": true, "--cookie": true,
}

func parseArgv(argv []string) (*invocation, error) {
	inv := &invocation{}
	next := func(i int, flag string) (string, error) {
		if i+1 >= len(argv) {
			return "", fmt.Errorf("flag %s needs a value", flag)
		}
		return argv[i+1], nil
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch arg {
		case "-H", "--header":
			v, err := next(i, arg)
			if err != nil {
				return nil, err
			}
			if name, value, ok := strings.Cut(v, ":"); ok {
				inv.headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
			}
			i++
		case "-d", "--data", "--data-raw", "--data-binary":
			v, err := next(i, arg)
			if err != nil {
				return nil, err
			}
			inv.body = &v
			i++
		case "-X", "--request":
			v, err := next(i, arg)
			if err != nil {
				return nil, err
			}
			inv.method = strings.ToUpper(v)
			i++
		case "-m", "--max-time":
			v, err := next(i, arg)
			if err != nil {
				return nil, err
			}
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("bad --max-time %q: %w", v, err)
			}
			inv.timeout = time.Duration(secs * float64(time.Second))
			i++
		case "-x", "--proxy":
			v, err := next(i, arg)
			if err != nil {
				return nil, err
			}
			inv.proxy = v
			i++
		case "-L", "--location":
			inv.follow = true
		case "-k", "--insecure":
			inv.insecure = true
		default:
			if valueFlags[arg] {
				i++
				continue
			}
			if !strings.HasPrefix(arg, "-") {
				inv.url = arg
			}
		}
	}

	if inv.url == "" {
		return nil, fmt.Errorf("no URL in arguments")
	}
	if inv.method == "" {
		inv.method = fhttp.MethodGet
		if inv.body != nil {
			inv.method = fhttp.MethodPost
		}
	}
	return inv, nil
}

// Run implements runner.Runner. Errors are also written to the trace, the way curl reports them.
func (r *Runner) Run(ctx context.Context, cmd runner.Command) (runner.Output, error) {
	var stdout, stderr bytes.Buffer
	out := func(code int) runner.Output {
		return runner.Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: code}
	}

	inv, err := parseArgv(cmd.Argv)
	if err != nil {
		fmt.Fprintf(&stderr, "curl: (2) %s\n", err)
		return out(2), err
	}

	target, err := url.Parse(inv.url)
	if err != nil {
		fmt.Fprintf(&stderr, "curl: (3) URL using bad/illegal format or missing URL\n")
		return out(3), fmt.Errorf("failed to parse url: %w", err)
	}

	addr, err := r.resolve(ctx, target)
	if err != nil {
		fmt.Fprintf(&stderr, "* Could not resolve host: %s\n", target.Hostname())
		return out(6), err
	}
	fmt.Fprintf(&stderr, "*   Trying %s...\n", addr)

	profile := selectProfile(r.opts)
	klog.V(2).Infof("tlsclient: %s %s with profile %s", inv.method, inv.url, profile.name)

	client, err := r.newClient(inv, profile)
	if err != nil {
		fmt.Fprintf(&stderr, "* %s\n", err)
		return out(2), err
	}

	req, err := newRequest(ctx, inv)
	if err != nil {
		fmt.Fprintf(&stderr, "* %s\n", err)
		return out(3), err
	}
	writeRequestTrace(&stderr, req, inv.headers)

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(&stderr, "* %s\n", err)
		return out(7), fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	writeResponseTrace(&stderr, resp)

	if _, err := io.Copy(&stdout, resp.Body); err != nil {
		fmt.Fprintf(&stderr, "* failed reading body: %s\n", err)
		return out(56), fmt.Errorf("failed to read response body: %w", err)
	}
	return out(0), nil
}

func (r *Runner) resolve(ctx context.Context, target *url.URL) (string, error) {
	host := target.Hostname()
	port := target.Port()
	if port == "" {
		port = "80"
		if target.Scheme == "https" {
			port = "443"
		}
	}

	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := r.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return "", fmt.Errorf("could not resolve host %s: %w", host, err)
		}
		if len(addrs) == 0 {
			return "", fmt.Errorf("could not resolve host %s", host)
		}
		ip = addrs[0].IP
	}
	return net.JoinHostPort(ip.String(), port), nil
}

func (r *Runner) newClient(inv *invocation, profile namedProfile) (tls_client.HttpClient, error) {
	timeout := inv.timeout
	if timeout <= 0 {
		timeout = r.opts.Timeout
	}

	clientOptions := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(math.Ceil(timeout.Seconds()))),
		tls_client.WithClientProfile(profile.profile),
		tls_client.WithCookieJar(tls_client.NewCookieJar()),
	}
	if !inv.follow {
		clientOptions = append(clientOptions, tls_client.WithNotFollowRedirects())
	}
	if inv.insecure {
		clientOptions = append(clientOptions, tls_client.WithInsecureSkipVerify())
	}
	if inv.proxy != "" {
		clientOptions = append(clientOptions, tls_client.WithProxyUrl(inv.proxy))
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS client: %w", err)
	}
	return client, nil
}

func newRequest(ctx context.Context, inv *invocation) (*fhttp.Request, error) {
	var body io.Reader
	if inv.body != nil {
		body = strings.NewReader(*inv.body)
	}

	req, err := fhttp.NewRequestWithContext(ctx, inv.method, inv.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to compose request: %w", err)
	}

	order := make([]string, 0, len(inv.headers))
	for _, h := range inv.headers {
		req.Header[h.Name] = []string{h.Value}
		order = append(order, strings.ToLower(h.Name))
	}
	if inv.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	// Headers go out in the order they were given, as the browser being impersonated would send them.
	req.Header[fhttp.HeaderOrderKey] = order
	return req, nil
}

func writeRequestTrace(w io.Writer, req *fhttp.Request, headers models.Headers) {
	fmt.Fprintf(w, "> %s %s HTTP/1.1\n", req.Method, req.URL.RequestURI())
	fmt.Fprintf(w, "> Host: %s\n", req.URL.Host)
	for _, h := range headers {
		fmt.Fprintf(w, "> %s: %s\n", h.Name, h.Value)
	}
	fmt.Fprintf(w, "> \n")
}

func writeResponseTrace(w io.Writer, resp *fhttp.Response) {
	proto := resp.Proto
	if resp.ProtoMajor >= 2 {
		proto = fmt.Sprintf("HTTP/%d", resp.ProtoMajor)
	}
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	fmt.Fprintf(w, "< %s %d %s\n", proto, resp.StatusCode, reason)

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range resp.Header[name] {
			fmt.Fprintf(w, "< %s: %s\n", name, value)
		}
	}
	fmt.Fprintf(w, "< \n")
}
