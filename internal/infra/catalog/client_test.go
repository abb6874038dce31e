package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/tracks/trk-1", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"trk-1","title":"Open Eye Signal","artist":"Jon Hopkins","cover_url":"https://img/1.jpg","duration_ms":465000}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	got, err := c.Resolve(context.Background(), "trk-1")
	require.NoError(t, err)
	assert.Equal(t, "trk-1", got.ID)
	assert.Equal(t, "Open Eye Signal", got.Title)
	assert.Equal(t, "Jon Hopkins", got.Artist)
	assert.Equal(t, 465*time.Second, got.Duration)

	// second resolve is served from cache
	_, err = c.Resolve(context.Background(), "trk-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestResolveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "trk-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTrackNotFound)
}

func TestResolveIncompleteDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"trk-1","title":"","duration_ms":0}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "trk-1")
	assert.Error(t, err)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
