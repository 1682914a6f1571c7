package instrumentation_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ditsuke/go-curl-impersonate/impersonate/instrumentation"
	. "github.com/onsi/gomega"
)

func TestStartInvocationWithoutInit(t *testing.T) {
	g := NewGomegaWithT(t)

	it := instrumentation.StartInvocation(context.Background(), "GET", "curl-impersonate-chrome-linux-x86")
	g.Expect(it.Context()).ToNot(BeNil())
	g.Expect(func() { it.End(200, nil) }).ToNot(Panic())
}

func TestMetrics(t *testing.T) {
	g := NewGomegaWithT(t)

	shutdown, err := instrumentation.Init(context.Background(), instrumentation.Config{
		Environment:    "test",
		SampleRate:     1,
		MetricsEnabled: true,
	})
	g.Expect(err).ToNot(HaveOccurred())
	defer shutdown(context.Background())

	ctx := context.Background()
	instrumentation.StartInvocation(ctx, "GET", "curl-impersonate-chrome-linux-x86").End(200, nil)
	instrumentation.StartInvocation(ctx, "POST", "curl-impersonate-chrome-linux-x86").End(0, errors.New("spawn failed"))
	instrumentation.RecordPresetLookup(ctx, "chrome-110", "Found")

	var buf bytes.Buffer
	g.Expect(instrumentation.WriteMetrics(&buf)).To(Succeed())
	g.Expect(buf.String()).To(ContainSubstring("curl_impersonate_invocations"))
	g.Expect(buf.String()).To(ContainSubstring("curl_impersonate_preset_lookups"))
	g.Expect(buf.String()).To(ContainSubstring(`outcome="Found"`))

	rec := httptest.NewRecorder()
	instrumentation.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(ContainSubstring("curl_impersonate_errors"))
}

func TestInitWithServiceResource(t *testing.T) {
	for _, env := range []string{"", "development", "production"} {
		t.Run("env="+env, func(t *testing.T) {
			g := NewGomegaWithT(t)

			shutdown, err := instrumentation.Init(context.Background(), instrumentation.Config{
				Environment:    env,
				SampleRate:     1,
				MetricsEnabled: true,
			})
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(shutdown(context.Background())).To(Succeed())
		})
	}
}

func TestRecordError(t *testing.T) {
	g := NewGomegaWithT(t)

	shutdown, err := instrumentation.Init(context.Background(), instrumentation.Config{MetricsEnabled: true})
	g.Expect(err).ToNot(HaveOccurred())
	defer shutdown(context.Background())

	instrumentation.RecordError(context.Background(), "prepare", errors.New("invalid URL"))

	var buf bytes.Buffer
	g.Expect(instrumentation.WriteMetrics(&buf)).To(Succeed())
	g.Expect(buf.String()).To(ContainSubstring("curl_impersonate_errors"))
	g.Expect(buf.String()).To(ContainSubstring(`error_type="prepare"`))
}

func TestHandlerFollowsInit(t *testing.T) {
	g := NewGomegaWithT(t)

	handler := instrumentation.Handler()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				var buf bytes.Buffer
				_ = instrumentation.WriteMetrics(&buf)
				handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
			}
		}()
	}

	var shutdowns []func(context.Context) error
	for i := 0; i < 3; i++ {
		shutdown, err := instrumentation.Init(context.Background(), instrumentation.Config{MetricsEnabled: true})
		g.Expect(err).ToNot(HaveOccurred())
		shutdowns = append(shutdowns, shutdown)
	}
	close(stop)
	wg.Wait()
	defer func() {
		for _, shutdown := range shutdowns {
			_ = shutdown(context.Background())
		}
	}()

	instrumentation.RecordPresetLookup(context.Background(), "firefox-117", "Found")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(ContainSubstring(`target="firefox-117"`))
}

func TestDefaultConfig(t *testing.T) {
	g := NewGomegaWithT(t)

	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OTEL_SAMPLE_RATE", "0.25")
	t.Setenv("METRICS_ENABLED", "false")

	cfg := instrumentation.DefaultConfig()
	g.Expect(cfg.Environment).To(Equal("production"))
	g.Expect(cfg.SampleRate).To(Equal(0.25))
	g.Expect(cfg.MetricsEnabled).To(BeFalse())
}
