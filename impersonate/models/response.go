package models

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Response is the structured result of one transfer. Fields parsed from the diagnostic stream
// keep their zero value when the stream does not contain them.
type Response struct {
	RequestID string `json:"requestId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	Port      int    `json:"port,omitempty"`
	// StatusCode is 0 when no status line was found.
	StatusCode      int     `json:"statusCode,omitempty"`
	Proto           string  `json:"proto,omitempty"`
	Body            string  `json:"response"`
	ResponseHeaders Headers `json:"responseHeaders"`
	// RequestHeaders echoes the caller's headers, before any preset was merged in.
	RequestHeaders Headers `json:"requestHeaders"`
	VerboseStatus  bool    `json:"verboseStatus"`
}

// Document parses the body as HTML.
func (r *Response) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(r.Body))
}

// Select returns the trimmed text of every element matching the CSS selector.
func (r *Response) Select(selector string) ([]string, error) {
	dom, err := r.Document()
	if err != nil {
		return nil, err
	}

	var out []string
	dom.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out, nil
}

// Text returns the body with all markup removed.
func (r *Response) Text() string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(r.Body))
}
