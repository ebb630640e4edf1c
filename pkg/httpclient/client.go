// Package httpclient builds the engine's outbound HTTP client: a stock
// client whose transport stamps every request with the engine's
// User-Agent and any extra headers the caller configured.
package httpclient

import (
	"fmt"
	"maps"
	"net/http"
	"runtime"

	"github.com/docker/local-rag-engine/pkg/version"
)

type Opt func(http.Header)

// WithHeader sets one extra header on every request.
func WithHeader(key, value string) Opt {
	return func(h http.Header) {
		h.Set(key, value)
	}
}

// WithModelName forwards the user-facing model alias from the config file,
// when one was given.
func WithModelName(name string) Opt {
	return func(h http.Header) {
		if name != "" {
			h.Set("X-Engine-Model-Name", name)
		}
	}
}

// NewHTTPClient returns a client that applies the configured headers plus
// a consistent engine User-Agent to every request.
func NewHTTPClient(opts ...Opt) *http.Client {
	header := make(http.Header)
	for _, opt := range opts {
		opt(header)
	}
	header.Set("User-Agent", fmt.Sprintf("local-rag-engine/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH))

	return &http.Client{
		Transport: &headerTransport{
			header: header,
			rt:     http.DefaultTransport,
		},
	}
}

type headerTransport struct {
	header http.Header
	rt     http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	maps.Copy(r2.Header, t.header)
	return t.rt.RoundTrip(r2)
}
