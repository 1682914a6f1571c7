package impersonate

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate/instrumentation"
	"github.com/ditsuke/go-curl-impersonate/impersonate/internal/parse"
	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

// MakeRequest sends the configured request to url, or to the default URL when url is empty.
// The override applies to this call only.
//
// Fields the verbose trace does not provide are left at their zero value. Unless the client was
// built WithStrictExit, a binary that fails to run does not fail the call: the response then
// carries whatever was captured, typically nothing.
func (c *Client) MakeRequest(ctx context.Context, url string) (*models.Response, error) {
	rc, err := c.Prepare(ctx, url)
	if err != nil {
		klog.Errorf("MakeRequest: %v", err)
		instrumentation.RecordError(ctx, "prepare", err)
		return nil, err
	}
	return c.Do(ctx, rc)
}

// Do runs a prepared request.
func (c *Client) Do(ctx context.Context, rc *RequestContext) (*models.Response, error) {
	switch rc.Method {
	case models.MethodGet:
		return c.get(ctx, rc)
	case models.MethodPost:
		return c.post(ctx, rc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHTTPMethod, rc.Method)
	}
}

func (c *Client) get(ctx context.Context, rc *RequestContext) (*models.Response, error) {
	return c.invoke(ctx, rc)
}

func (c *Client) post(ctx context.Context, rc *RequestContext) (*models.Response, error) {
	response, err := c.invoke(ctx, rc)
	if err != nil {
		return nil, err
	}
	response.Body = parse.CleanPostBody(response.Body)
	return response, nil
}

// invoke runs the binary and assembles the response from its output.
func (c *Client) invoke(ctx context.Context, rc *RequestContext) (*models.Response, error) {
	statusCode := 0
	var reqErr error
	trace := instrumentation.StartInvocation(ctx, string(rc.Method), rc.Binary)
	defer func() {
		trace.End(statusCode, reqErr)
	}()

	logger := c.logger.WithValues("requestID", rc.ID, "binary", rc.Binary, "url", rc.URL)
	if rc.Verbose {
		logger.Info("invoking curl-impersonate", "path", rc.BinaryPath, "args", rc.Command.Line)
	}

	out, err := c.runner.Run(trace.Context(), rc.Command)
	if err != nil {
		if c.strictExit {
			reqErr = fmt.Errorf("%w: %s: %v", ErrSpawnFailure, rc.Binary, err)
			logger.Error(err, "curl-impersonate failed")
			return nil, reqErr
		}
		klog.Warningf("invoke: %s failed (exit code %d), parsing captured output: %v", rc.Binary, out.ExitCode, err)
	}

	verbose := parse.VerboseOutput(string(out.Stderr))
	statusCode = verbose.StatusCode
	logger.V(2).Info("request settled", "status", verbose.StatusCode, "proto", verbose.Proto, "bytes", len(out.Stdout))

	return &models.Response{
		RequestID:       rc.ID,
		IPAddress:       verbose.IPAddress,
		Port:            verbose.Port,
		StatusCode:      verbose.StatusCode,
		Proto:           verbose.Proto,
		Body:            string(out.Stdout),
		ResponseHeaders: verbose.Headers,
		RequestHeaders:  rc.RequestHeaders,
		VerboseStatus:   rc.Verbose,
	}, nil
}
