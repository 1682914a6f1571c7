package parse

import (
	"regexp"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

// Verbose is what can be recovered from a curl verbose trace. Anything not present in the
// trace keeps its zero value.
type Verbose struct {
	IPAddress  string
	Port       int
	StatusCode int
	Proto      string
	Headers    models.Headers
}

var (
	tryingRe = regexp.MustCompile(`Trying (\S+):(\d+)`)
	// curl prints "< HTTP/2 200 " with an empty reason phrase, so the reason is optional.
	statusRe = regexp.MustCompile(`(?m)^< (HTTP/(?:1\.0|1\.1|2|3)) (\d{3})(?: ([^\r\n]*))?`)

	// "> CONNECT example.com:443 HTTP/1.1"
	requestLineRe = regexp.MustCompile(`^> ([A-Z]+) \S+ HTTP/`)
)

const responsePrefix = "< "

// VerboseOutput extracts connection metadata, the status line and the response headers from
// the diagnostic text. Each extraction scans the whole text on its own, and none of them fail.
// A proxy's reply to CONNECT is not part of the response and is ignored.
func VerboseOutput(text string) *Verbose {
	ip, port := Connection(text)
	proto, status := StatusLine(text)
	v := &Verbose{
		IPAddress:  ip,
		Port:       port,
		StatusCode: status,
		Proto:      proto,
		Headers:    ResponseHeaders(text),
	}
	klog.V(2).Infof("parse(verbose): ip=%s port=%d status=%d proto=%s headers=%d", v.IPAddress, v.Port, v.StatusCode, v.Proto, len(v.Headers))
	return v
}

// Connection returns the address and port of the first connection attempt.
func Connection(text string) (string, int) {
	match := tryingRe.FindStringSubmatch(text)
	if match == nil {
		return "", 0
	}
	port, err := strconv.Atoi(match[2])
	if err != nil {
		klog.Warningf("parse(verbose): bad port %q: %s", match[2], err)
		port = 0
	}
	// IPv6 addresses are printed in brackets.
	ip := strings.TrimSuffix(strings.TrimPrefix(match[1], "["), "]")
	return ip, port
}

// StatusLine returns the protocol and status code of the first response status line that is
// not a proxy tunnel reply.
func StatusLine(text string) (string, int) {
	match := statusRe.FindStringSubmatch(withoutTunnelReplies(text))
	if match == nil {
		return "", 0
	}
	code, err := strconv.Atoi(match[2])
	if err != nil {
		return match[1], 0
	}
	return match[1], code
}

// ResponseHeaders collects every "< Name: Value" line outside proxy tunnel replies. Lines
// without a ": " separator, such as the status line or the blank line closing the header block,
// are skipped. A repeated name keeps its first position and takes the later value.
func ResponseHeaders(text string) models.Headers {
	headers := models.Headers{}
	for _, line := range strings.Split(withoutTunnelReplies(text), "\n") {
		if !strings.HasPrefix(line, responsePrefix) {
			continue
		}
		name, value, ok := strings.Cut(line[len(responsePrefix):], ": ")
		if !ok {
			continue
		}
		headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return headers
}

// withoutTunnelReplies drops each proxy reply to CONNECT, from its status line through the
// blank "< " line closing its headers. A status line is such a reply when the last request line
// before it was a CONNECT, or when its reason is "Connection established", and only if another
// status line follows it.
func withoutTunnelReplies(text string) string {
	lines := strings.Split(text, "\n")
	last := -1
	for i, line := range lines {
		if statusRe.MatchString(line) {
			last = i
		}
	}
	if last <= 0 {
		return text
	}

	kept := make([]string, 0, len(lines))
	connect, skipping := false, false
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if m := requestLineRe.FindStringSubmatch(trimmed); m != nil {
			connect = m[1] == "CONNECT"
		}
		if skipping {
			if strings.TrimSpace(trimmed) == "<" {
				skipping = false
			}
			continue
		}
		if m := statusRe.FindStringSubmatch(trimmed); m != nil && i < last &&
			(connect || strings.EqualFold(strings.TrimSpace(m[3]), "connection established")) {
			klog.V(2).Infof("parse(verbose): skipping tunnel reply %q", strings.TrimSpace(trimmed))
			connect, skipping = false, true
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

var continuationRe = regexp.MustCompile(`\s+\+\s+`)

// CleanPostBody removes the " + " continuation artifacts the binary leaves in POST output.
func CleanPostBody(body string) string {
	return continuationRe.ReplaceAllString(body, "")
}
