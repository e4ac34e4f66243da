package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithInterval(time.Millisecond),
	)
	return c, srv
}

func TestGeocode_Match(t *testing.T) {
	var gotQuery, gotUA string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"lat":"3.1578","lon":"101.7119","display_name":"Kuala Lumpur"}]`))
	})
	defer srv.Close()

	result, err := c.Geocode(context.Background(), "12 Jalan Besar, 56000, Kuala Lumpur")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 3.1578, result.Lat, 1e-9)
	assert.InDelta(t, 101.7119, result.Lng, 1e-9)
	assert.Equal(t, "12 Jalan Besar, 56000, Kuala Lumpur", gotQuery)
	assert.Contains(t, gotUA, "roster-cli")
}

func TestGeocode_NoMatch(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	result, err := c.Geocode(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_ServerError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := c.Geocode(context.Background(), "12 Jalan Besar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestGeocode_MalformedResponse(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	})
	defer srv.Close()

	_, err := c.Geocode(context.Background(), "12 Jalan Besar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestGeocode_UnparseableCoordinates(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat":"not-a-number","lon":"101.7"}]`))
	})
	defer srv.Close()

	_, err := c.Geocode(context.Background(), "12 Jalan Besar")
	require.Error(t, err)
}

func TestGeocode_RateLimitSpacesRequests(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	interval := 50 * time.Millisecond
	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithInterval(interval))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Geocode(context.Background(), "somewhere")
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.Equal(t, 3, calls)
	// First call passes immediately, the next two wait one interval each.
	assert.GreaterOrEqual(t, elapsed, 2*interval-5*time.Millisecond)
}

func TestGeocode_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithInterval(time.Hour))

	// First call burns the initial token; the second has to wait out the
	// interval and should fail on the context instead.
	_, err := c.Geocode(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Geocode(ctx, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
