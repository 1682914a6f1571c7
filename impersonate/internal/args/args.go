// Package args renders validated request options into the argument list of a curl-impersonate
// invocation, both as a shell command line and as an argument vector.
package args

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

// VerboseFlag makes the binary write its diagnostic trace to stderr. It is always present.
const VerboseFlag = "-v"

var ErrMissingBody = errors.New("body is undefined in a POST request")

// Args is a built invocation, minus the binary itself.
type Args struct {
	// Flags are raw passthrough arguments, rendered unquoted.
	Flags []string
	// Headers are "Name: Value" lines in order.
	Headers []string
	URL     string
	// Body is set for POST only.
	Body *string
}

// OptionFlags turns the timeout and redirect options into binary flags.
func OptionFlags(timeout time.Duration, followRedirects bool) []string {
	var flags []string
	if timeout > 0 {
		flags = append(flags, "--max-time "+strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
	}
	if followRedirects {
		flags = append(flags, "-L")
	}
	return flags
}

// Build assembles the arguments for method. The verbose flag is appended to flags unless it is
// already the last one. POST requires a body.
func Build(method models.Method, flags []string, headers models.Headers, url string, body any) (Args, error) {
	built := Args{
		Flags:   WithVerbose(flags),
		Headers: lo.Map(headers, func(h models.Header, _ int) string { return h.Name + ": " + h.Value }),
		URL:     url,
	}

	switch method {
	case models.MethodGet:
		return built, nil
	case models.MethodPost:
		if body == nil {
			return Args{}, ErrMissingBody
		}
		data := BodyString(body)
		built.Body = &data
		return built, nil
	default:
		return Args{}, fmt.Errorf("no argument layout for method %q", method)
	}
}

// WithVerbose returns a copy of flags ending in the verbose flag.
func WithVerbose(flags []string) []string {
	out := append([]string(nil), flags...)
	if len(out) == 0 || out[len(out)-1] != VerboseFlag {
		out = append(out, VerboseFlag)
	}
	return out
}

// BodyString renders a POST body. Strings and byte slices pass through untouched; other values
// are JSON encoded, falling back to their default formatting when they cannot be encoded.
func BodyString(body any) string {
	switch b := body.(type) {
	case string:
		return b
	case []byte:
		return string(b)
	case json.RawMessage:
		return string(b)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(encoded)
}

// String renders the command line: `<flags> <headers> '<url>' [-d '<body>']`.
func (a Args) String() string {
	parts := append([]string(nil), a.Flags...)
	for _, h := range a.Headers {
		parts = append(parts, "-H", Quote(h))
	}
	parts = append(parts, Quote(a.URL))
	if a.Body != nil {
		parts = append(parts, "-d", Quote(*a.Body))
	}
	return strings.Join(parts, " ")
}

// Argv returns the arguments as a vector. Raw flags are split on whitespace, so a flag value
// cannot itself contain spaces here.
func (a Args) Argv() []string {
	var argv []string
	for _, f := range a.Flags {
		argv = append(argv, strings.Fields(f)...)
	}
	for _, h := range a.Headers {
		argv = append(argv, "-H", h)
	}
	argv = append(argv, a.URL)
	if a.Body != nil {
		argv = append(argv, "-d", *a.Body)
	}
	return argv
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var headerFlagRe = regexp.MustCompile(`-H '((?:[^']|'\\'')*)'`)

// ParseHeaders recovers the headers from a rendered command line.
func ParseHeaders(line string) models.Headers {
	var headers models.Headers
	for _, match := range headerFlagRe.FindAllStringSubmatch(line, -1) {
		raw := strings.ReplaceAll(match[1], `'\''`, "'")
		name, value, ok := strings.Cut(raw, ": ")
		if !ok {
			continue
		}
		headers.Set(name, value)
	}
	return headers
}
