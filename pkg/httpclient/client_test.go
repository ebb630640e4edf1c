package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, client *http.Client) http.Header {
	t.Helper()

	var captured http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = r.Header
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	return captured
}

func TestUserAgentAlwaysSet(t *testing.T) {
	t.Parallel()

	headers := doRequest(t, NewHTTPClient())
	assert.True(t, strings.HasPrefix(headers.Get("User-Agent"), "local-rag-engine/"))
}

func TestWithModelName(t *testing.T) {
	t.Parallel()

	t.Run("sets header when name is provided", func(t *testing.T) {
		t.Parallel()
		headers := doRequest(t, NewHTTPClient(WithModelName("my-fast-model")))
		assert.Equal(t, "my-fast-model", headers.Get("X-Engine-Model-Name"))
	})

	t.Run("skips header when name is empty", func(t *testing.T) {
		t.Parallel()
		headers := doRequest(t, NewHTTPClient(WithModelName("")))
		assert.Empty(t, headers.Get("X-Engine-Model-Name"))
	})
}

func TestWithHeader(t *testing.T) {
	t.Parallel()

	headers := doRequest(t, NewHTTPClient(WithHeader("X-Engine-Test", "on")))
	assert.Equal(t, "on", headers.Get("X-Engine-Test"))
}
