package parse_test

import (
	"os"
	"testing"

	"github.com/ditsuke/go-curl-impersonate/impersonate/internal/parse"
	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
	. "github.com/onsi/gomega"
)

func readFixture(g *GomegaWithT, name string) string {
	data, err := os.ReadFile("testdata/" + name)
	g.Expect(err).ToNot(HaveOccurred())
	return string(data)
}

func TestVerboseOutput(t *testing.T) {
	testCases := []struct {
		name    string
		fixture string
		matcher func(g *GomegaWithT, v *parse.Verbose)
	}{
		{
			name:    "HTTP/2 GET trace with CRLF line endings",
			fixture: "example_get.txt",
			matcher: func(g *GomegaWithT, v *parse.Verbose) {
				g.Expect(v.IPAddress).To(Equal("93.184.216.34"))
				g.Expect(v.Port).To(Equal(443))
				g.Expect(v.StatusCode).To(Equal(200))
				g.Expect(v.Proto).To(Equal("HTTP/2"))
				g.Expect(v.Headers.Names()).To(Equal([]string{
					"content-encoding", "age", "cache-control", "content-type", "date", "etag", "set-cookie", "content-length",
				}))
				ct, _ := v.Headers.Get("content-type")
				g.Expect(ct).To(Equal("text/html; charset=UTF-8"))
				cookie, _ := v.Headers.Get("set-cookie")
				g.Expect(cookie).To(Equal("b=2"))
			},
		},
		{
			name:    "HTTP/1.1 POST trace over IPv6",
			fixture: "example_post_http1.txt",
			matcher: func(g *GomegaWithT, v *parse.Verbose) {
				g.Expect(v.IPAddress).To(Equal("2606:2800:220:1:248:1893:25c8:1946"))
				g.Expect(v.Port).To(Equal(443))
				g.Expect(v.StatusCode).To(Equal(201))
				g.Expect(v.Proto).To(Equal("HTTP/1.1"))
				trace, _ := v.Headers.Get("X-Trace")
				g.Expect(trace).To(Equal("a: b"))
				_, ok := v.Headers.Get("Host")
				g.Expect(ok).To(BeFalse(), "request headers must not leak into response headers")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			tc.matcher(g, parse.VerboseOutput(readFixture(g, tc.fixture)))
		})
	}
}

func TestVerboseOutputSingleLines(t *testing.T) {
	g := NewGomegaWithT(t)

	ip, port := parse.Connection("* Trying 93.184.216.34:443")
	g.Expect(ip).To(Equal("93.184.216.34"))
	g.Expect(port).To(Equal(443))

	_, status := parse.StatusLine("< HTTP/2 200 OK")
	g.Expect(status).To(Equal(200))

	headers := parse.ResponseHeaders("< content-type: text/html")
	g.Expect(headers).To(Equal(models.Headers{{Name: "content-type", Value: "text/html"}}))
}

func TestVerboseOutputMissingData(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "connection failure", text: "* Could not resolve host: nowhere.invalid\n* Closing connection 0\ncurl: (6) Could not resolve host: nowhere.invalid\n"},
		{name: "status without a code", text: "< HTTP/2 \n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			v := parse.VerboseOutput(tc.text)
			g.Expect(v.IPAddress).To(BeEmpty())
			g.Expect(v.Port).To(BeZero())
			g.Expect(v.StatusCode).To(BeZero())
			g.Expect(v.Headers).To(BeEmpty())
		})
	}
}

func TestStatusLineTakesFirstMatch(t *testing.T) {
	g := NewGomegaWithT(t)

	text := "< HTTP/1.1 301 Moved Permanently\n< Location: https://example.com/\n< \n< HTTP/2 200 \n"
	proto, status := parse.StatusLine(text)
	g.Expect(proto).To(Equal("HTTP/1.1"))
	g.Expect(status).To(Equal(301))
}

func TestTunnelRepliesAreSkipped(t *testing.T) {
	testCases := []struct {
		name        string
		text        string
		wantProto   string
		wantStatus  int
		wantHeaders models.Headers
	}{
		{
			name:        "connection established reason",
			text:        "< HTTP/1.1 200 Connection established\n< \n< HTTP/2 404 \n< server: x\n",
			wantProto:   "HTTP/2",
			wantStatus:  404,
			wantHeaders: models.Headers{{Name: "server", Value: "x"}},
		},
		{
			name:        "reply to a CONNECT request",
			text:        "> CONNECT example.com:443 HTTP/1.1\r\n> \r\n< HTTP/1.0 200 OK\r\n< Via: proxy\r\n< \r\n> GET / HTTP/1.1\r\n< HTTP/1.1 503 Service Unavailable\r\n< retry-after: 5\r\n",
			wantProto:   "HTTP/1.1",
			wantStatus:  503,
			wantHeaders: models.Headers{{Name: "retry-after", Value: "5"}},
		},
		{
			name:        "lone established reply is the response",
			text:        "< HTTP/1.1 200 Connection established\n< \n",
			wantProto:   "HTTP/1.1",
			wantStatus:  200,
			wantHeaders: models.Headers{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			v := parse.VerboseOutput(tc.text)
			g.Expect(v.Proto).To(Equal(tc.wantProto))
			g.Expect(v.StatusCode).To(Equal(tc.wantStatus))
			g.Expect(v.Headers).To(Equal(tc.wantHeaders))
		})
	}
}

func TestVerboseOutputThroughProxy(t *testing.T) {
	g := NewGomegaWithT(t)

	v := parse.VerboseOutput(readFixture(g, "example_proxy_connect.txt"))
	g.Expect(v.IPAddress).To(Equal("10.0.0.5"))
	g.Expect(v.Port).To(Equal(3128))
	g.Expect(v.Proto).To(Equal("HTTP/2"))
	g.Expect(v.StatusCode).To(Equal(404))
	_, ok := v.Headers.Get("Proxy-Agent")
	g.Expect(ok).To(BeFalse())
	server, _ := v.Headers.Get("server")
	g.Expect(server).To(Equal("ECS (nyb/1D2A)"))
	g.Expect(v.Headers).To(HaveLen(3))
}

func TestCleanPostBody(t *testing.T) {
	g := NewGomegaWithT(t)
	g.Expect(parse.CleanPostBody("{\"a\":\"abc\" + \n  \"def\"}")).To(Equal(`{"a":"abc""def"}`))
	g.Expect(parse.CleanPostBody("1+1")).To(Equal("1+1"))
}
