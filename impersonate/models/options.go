package models

import (
	"time"
)

// Method is an HTTP method as supplied by the caller. Matching against the supported set is
// case-insensitive.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Target names a browser version to impersonate.
type Target string

const (
	TargetChrome110  Target = "chrome-110"
	TargetChrome116  Target = "chrome-116"
	TargetFirefox109 Target = "firefox-109"
	TargetFirefox117 Target = "firefox-117"
)

// IsFirefox reports whether the target selects the firefox binary family. Everything else,
// including an empty or unknown target, uses the chrome family.
func (t Target) IsFirefox() bool {
	return t == TargetFirefox109 || t == TargetFirefox117
}

// RequestOptions describes a single request to make through a curl-impersonate binary.
type RequestOptions struct {
	Method  Method
	Headers Headers
	// Body is only valid for POST. Strings and byte slices are passed through as-is, anything
	// else is JSON encoded. A nil Body means no body.
	Body any
	// Flags are raw arguments handed to the binary before the headers, e.g. "--max-time 10".
	Flags           []string
	Timeout         time.Duration
	FollowRedirects bool
	// Verbose logs the resolved binary path and arguments. Diagnostics are captured regardless.
	Verbose bool
	// Impersonate selects a preset. Unknown values are ignored.
	Impersonate Target
	// BinaryOverridePath is a directory holding the binaries. It takes precedence over the
	// CURL_IMPERSONATE_BINARY_PATH environment variable.
	BinaryOverridePath string
	// PresetApplied is the preset already merged into these options. It is set by the merge
	// and left empty by callers.
	PresetApplied Target
}

// Clone returns a deep copy of the options. Body is copied by reference.
func (o RequestOptions) Clone() RequestOptions {
	out := o
	out.Headers = o.Headers.Clone()
	if o.Flags != nil {
		out.Flags = append([]string(nil), o.Flags...)
	}
	return out
}
