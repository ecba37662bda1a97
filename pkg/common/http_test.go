package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "projeto-goodwe/"+strings.TrimSpace(version), r.Header.Get("User-Agent"), "User-Agent should match expected format")
		if r.URL.Path == "/json" {
			assert.Equal(t, "application/json", r.Header.Get("Accept"), "explicit Accept should be kept")
		} else {
			assert.Equal(t, "*/*", r.Header.Get("Accept"), "Accept should default to */*")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	timeout := 5 * time.Second
	client := HTTPClient(timeout)
	assert.Equal(t, timeout, client.Timeout, "Timeout should be set correctly")
	assert.NotNil(t, client.Transport, "Transport should not be nil")

	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, req.Header.Get("User-Agent"), "original request should not be mutated")

	req, err = http.NewRequest("GET", server.URL+"/json", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
}
