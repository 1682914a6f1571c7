// Package tlsclient provides an in-process runner.Runner backed by github.com/bogdanfinn/tls-client.
//
// The runner takes the same argument vector a curl-impersonate binary would receive and performs
// the request with a tls-client browser profile matching the impersonation target, so requests
// can be made on platforms without a curl-impersonate build. Its output mimics the binary's:
// the response body on stdout and a curl-style verbose trace on stderr, which the regular
// verbose parser consumes unchanged.
//
// Example Usage:
//
//	r := tlsclient.NewRunner(&tlsclient.Options{
//	    Target:  models.TargetFirefox117,
//	    Timeout: 30 * time.Second,
//	})
//	client, err := impersonate.NewClient(url, opts, impersonate.WithRunner(r))
//
// Understood arguments: -H, -d/--data*, -X, -m/--max-time, -L, -k, -x/--proxy and the URL.
// TLS and HTTP/2 tuning flags meant for the binary are skipped; the profile covers them.
//
// Profile Rotation Modes (only for targets without a mapped profile):
//   - ProfileRotationOff: Always use the same profile
//   - ProfileRotationRandom: Randomly select a profile for each request
//   - ProfileRotationSequential: Rotate through profiles in order
package tlsclient
