package searx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/pick"
	"github.com/prodfinder/imagepick/internal/policy/retry"
)

const resultsJSON = `{
  "results": [
    {"img_src": "https://img.example.com/a.png"},
    {"img_src": "//cdn.example.com/b.jpg"},
    {"img_src": ""},
    {"img_src": "data:image/png;base64,AAAA"},
    {"img_src": "https://img.example.com/c.png"},
    {"img_src": "https://img.example.com/d.png"}
  ]
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL}, retry.NewPolicyWith(2, time.Millisecond, 2*time.Millisecond), zap.NewNop())
}

func TestSearchParsesResults(t *testing.T) {
	t.Parallel()

	var gotQuery, gotFormat, gotCategories string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		gotCategories = r.URL.Query().Get("categories")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsJSON))
	})

	urls, err := p.Search(context.Background(), "wireless mouse", pick.NewExclusionSet(), 10)
	require.NoError(t, err)
	require.Equal(t, "wireless mouse", gotQuery)
	require.Equal(t, "json", gotFormat)
	require.Equal(t, "images", gotCategories)
	require.Equal(t, []string{
		"https://img.example.com/a.png",
		"https://cdn.example.com/b.jpg",
		"https://img.example.com/c.png",
		"https://img.example.com/d.png",
	}, urls)
}

func TestSearchDropsExcludedBeforeLimit(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(resultsJSON))
	})

	exclude := pick.NewExclusionSet("https://img.example.com/a.png")
	urls, err := p.Search(context.Background(), "mouse", exclude, 2)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://cdn.example.com/b.jpg",
		"https://img.example.com/c.png",
	}, urls)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		w.Write([]byte(resultsJSON))
	})

	urls, err := p.Search(context.Background(), "mouse", pick.NewExclusionSet(), 1)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	require.Equal(t, int32(2), calls.Load())
}

func TestSearchGivesUpAfterPersistentFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := p.Search(context.Background(), "mouse", pick.NewExclusionSet(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 503")
	require.Equal(t, int32(3), calls.Load())
}

func TestSearchRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	_, err := p.Search(context.Background(), "mouse", pick.NewExclusionSet(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSearchCancelledContext(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(resultsJSON))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Search(ctx, "mouse", pick.NewExclusionSet(), 1)
	require.Error(t, err)
}
