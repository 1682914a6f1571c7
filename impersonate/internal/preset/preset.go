// Package preset holds the browser impersonation presets and the logic that merges one into a
// request's options.
package preset

import (
	"sort"

	"github.com/samber/lo"
	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

// Preset is a bundle of headers and binary flags approximating one browser's request
// fingerprint. Values handed out by this package are copies; the registry never changes.
type Preset struct {
	Target  models.Target
	Headers models.Headers
	Flags   []string
}

func (p Preset) clone() Preset {
	return Preset{
		Target:  p.Target,
		Headers: p.Headers.Clone(),
		Flags:   append([]string(nil), p.Flags...),
	}
}

const (
	chromeCiphers = "TLS_AES_128_GCM_SHA256,TLS_AES_256_GCM_SHA384,TLS_CHACHA20_POLY1305_SHA256," +
		"ECDHE-ECDSA-AES128-GCM-SHA256,ECDHE-RSA-AES128-GCM-SHA256,ECDHE-ECDSA-AES256-GCM-SHA384," +
		"ECDHE-RSA-AES256-GCM-SHA384,ECDHE-ECDSA-CHACHA20-POLY1305,ECDHE-RSA-CHACHA20-POLY1305," +
		"ECDHE-RSA-AES128-SHA,ECDHE-RSA-AES256-SHA,AES128-GCM-SHA256,AES256-GCM-SHA384,AES128-SHA,AES256-SHA"

	firefoxCiphers = "aes_128_gcm_sha_256,chacha20_poly1305_sha_256,aes_256_gcm_sha_384," +
		"ecdhe_ecdsa_aes_128_gcm_sha_256,ecdhe_rsa_aes_128_gcm_sha_256,ecdhe_ecdsa_chacha20_poly1305_sha_256," +
		"ecdhe_rsa_chacha20_poly1305_sha_256,ecdhe_ecdsa_aes_256_gcm_sha_384,ecdhe_rsa_aes_256_gcm_sha_384," +
		"ecdhe_ecdsa_aes_256_sha,ecdhe_ecdsa_aes_128_sha,ecdhe_rsa_aes_128_sha,ecdhe_rsa_aes_256_sha," +
		"rsa_aes_128_gcm_sha_256,rsa_aes_256_gcm_sha_384,rsa_aes_128_sha,rsa_aes_256_sha"

	chromeAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	firefoxAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

func chrome(version string) Preset {
	return Preset{
		Target: models.Target("chrome-" + version),
		Headers: models.Headers{
			{Name: "sec-ch-ua", Value: `"Chromium";v="` + version + `", "Not A(Brand";v="24", "Google Chrome";v="` + version + `"`},
			{Name: "sec-ch-ua-mobile", Value: "?0"},
			{Name: "sec-ch-ua-platform", Value: `"Windows"`},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "User-Agent", Value: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + version + ".0.0.0 Safari/537.36"},
			{Name: "Accept", Value: chromeAccept},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-User", Value: "?1"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
		},
		Flags: []string{
			"--ciphers " + chromeCiphers,
			"--http2",
			"--http2-no-server-push",
			"--compressed",
			"--tlsv1.2",
			"--alps",
			"--tls-permute-extensions",
			"--cert-compression brotli",
		},
	}
}

func firefox(version string) Preset {
	return Preset{
		Target: models.Target("firefox-" + version),
		Headers: models.Headers{
			{Name: "User-Agent", Value: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:" + version + ".0) Gecko/20100101 Firefox/" + version + ".0"},
			{Name: "Accept", Value: firefoxAccept},
			{Name: "Accept-Language", Value: "en-US,en;q=0.5"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Sec-Fetch-User", Value: "?1"},
			{Name: "TE", Value: "Trailers"},
		},
		Flags: []string{
			"--ciphers " + firefoxCiphers,
			"--http2",
			"--compressed",
			"--tlsv1.2",
			"--http2-pseudo-headers-order mpas",
		},
	}
}

var registry = map[models.Target]Preset{
	models.TargetChrome110:  chrome("110"),
	models.TargetChrome116:  chrome("116"),
	models.TargetFirefox109: firefox("109"),
	models.TargetFirefox117: firefox("117"),
}

// Outcome tags the result of a preset lookup.
type Outcome int

const (
	// NotRecognized means the target is empty or not a known preset; nothing is merged.
	NotRecognized Outcome = iota
	Found
)

func (o Outcome) String() string {
	if o == Found {
		return "found"
	}
	return "not-recognized"
}

// Lookup is the result of resolving a target against the registry.
type Lookup struct {
	Outcome Outcome
	Preset  Preset
}

// Find resolves target. The returned preset is a copy and may be modified freely.
func Find(target models.Target) Lookup {
	p, ok := registry[target]
	if !ok {
		return Lookup{Outcome: NotRecognized}
	}
	return Lookup{Outcome: Found, Preset: p.clone()}
}

// Available returns every known target, sorted.
func Available() []models.Target {
	targets := lo.Keys(registry)
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// Merge applies the preset named by opts.Impersonate to opts in place and reports the lookup.
// Preset headers are assigned over the caller's, so a preset value replaces a caller value
// under the same name. Preset flags are appended after the caller's flags. Options that already
// carry the target's preset are left as they are.
func Merge(opts *models.RequestOptions) Lookup {
	lookup := Find(opts.Impersonate)
	if lookup.Outcome == NotRecognized {
		if opts.Impersonate != "" {
			klog.V(2).Infof("preset: ignoring unrecognized impersonate target %q", opts.Impersonate)
		}
		return lookup
	}
	if opts.PresetApplied == lookup.Preset.Target {
		klog.V(4).Infof("preset: %s already merged", lookup.Preset.Target)
		return lookup
	}

	opts.Headers = opts.Headers.Merge(lookup.Preset.Headers)
	opts.Flags = append(append([]string(nil), opts.Flags...), lookup.Preset.Flags...)
	opts.PresetApplied = lookup.Preset.Target

	klog.V(2).Infof("preset: merged %s (%d headers, %d flags)", lookup.Preset.Target, len(lookup.Preset.Headers), len(lookup.Preset.Flags))
	return lookup
}
