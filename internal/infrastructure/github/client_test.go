package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

const compareDiff = `diff --git a/api/a.go b/api/a.go
index 83db48f..bf269f4 100644
--- a/api/a.go
+++ b/api/a.go
@@ -1,2 +1,3 @@
 package api
+// added
 func A() {}
`

func TestClient_Compare(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/app/compare/base1...head2", r.URL.Path)
		assert.Equal(t, diffMediaType, r.Header.Get("Accept"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(compareDiff))
	}))
	defer server.Close()

	client, err := NewClientWithHTTP("acme/app", "secret", server.Client(), server.URL)
	require.NoError(t, err)

	d, err := client.Compare(context.Background(), "base1", "head2")
	require.NoError(t, err)
	require.Contains(t, d.Files, "api/a.go")
	assert.Equal(t, domain.DiffModified, d.Files["api/a.go"].Type)
	assert.Equal(t, []int{2}, domain.AddedLines(d.Files["api/a.go"].Segments))
}

func TestClient_Compare_RateLimited(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
	}{
		{"too many requests", http.StatusTooManyRequests, nil},
		{"exhausted quota", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}},
		{"secondary limit", http.StatusForbidden, map[string]string{"Retry-After": "60"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client, err := NewClientWithHTTP("acme/app", "t", server.Client(), server.URL)
			require.NoError(t, err)
			_, err = client.Compare(context.Background(), "a", "b")
			assert.ErrorIs(t, err, application.ErrRateLimited)
		})
	}
}

func TestClient_Compare_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClientWithHTTP("acme/app", "t", server.Client(), server.URL)
	require.NoError(t, err)
	_, err = client.Compare(context.Background(), "a", "b")
	assert.ErrorIs(t, err, application.ErrDiffUnavailable)
	assert.NotErrorIs(t, err, application.ErrRateLimited)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestClient_Compare_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client, err := NewClientWithHTTP("acme/app", "t", server.Client(), server.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Compare(ctx, "a", "b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_InvalidRepo(t *testing.T) {
	for _, repo := range []string{"", "acme", "/app", "acme/", "a/b/c"} {
		_, err := NewClient(repo, "t")
		assert.Error(t, err, repo)
	}
}
