package validator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/text/cases"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

var (
	ErrInvalidMethod      = errors.New("invalid method")
	ErrMethodBodyConflict = errors.New("method is GET with an HTTP payload")
	ErrInvalidURL         = errors.New("invalid URL: must be absolute and include a scheme such as http:// or https://")
	ErrInvalidHeader      = errors.New("invalid header")
)

// ValidMethods lists the methods the orchestrator knows how to send. Adding a method here
// without teaching the orchestrator about it makes requests fail at send time instead.
var ValidMethods = []models.Method{models.MethodGet, models.MethodPost}

var fold = cases.Fold()

// Method returns the canonical (upper case) form of m if it is a supported method.
func Method(m models.Method) (models.Method, error) {
	folded := fold.String(string(m))
	canonical, ok := lo.Find(ValidMethods, func(valid models.Method) bool {
		return fold.String(string(valid)) == folded
	})
	if !ok {
		names := lo.Map(ValidMethods, func(valid models.Method, _ int) string { return string(valid) })
		return "", fmt.Errorf("%w %q: valid HTTP methods are %s", ErrInvalidMethod, m, strings.Join(names, ","))
	}
	return canonical, nil
}

// URL checks that raw is an absolute URL. http and https URLs must also name a host.
func URL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, raw)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return nil
}

// Headers checks that every name is a valid header token and every value is a valid field value.
func Headers(headers models.Headers) error {
	for _, h := range headers {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return fmt.Errorf("%w: name %q", ErrInvalidHeader, h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return fmt.Errorf("%w: value of %q", ErrInvalidHeader, h.Name)
		}
	}
	return nil
}

// Options validates the options for a request to rawURL. Checks run in order: method, body
// against method, URL, headers. Success is reported as a nil error; there is no partial result.
func Options(opts models.RequestOptions, rawURL string) error {
	method, err := Method(opts.Method)
	if err != nil {
		return err
	}
	if opts.Body != nil && method == models.MethodGet {
		return ErrMethodBodyConflict
	}
	if err := URL(rawURL); err != nil {
		return err
	}
	return Headers(opts.Headers)
}
