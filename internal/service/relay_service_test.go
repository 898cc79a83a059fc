package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	base        string
	failures    int
	calls       int
	key         string
	contentType string
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ []byte, contentType string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("connection reset by peer")
	}
	f.key, f.contentType = key, contentType
	return f.base + "/ref/" + key, nil
}

// mediaHost redirects /ref/<key> to /files/<key>, which serves the image.
func mediaHost(t *testing.T, finalType string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ref/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/files/"+strings.TrimPrefix(r.URL.Path, "/ref/"), http.StatusFound)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", finalType)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRelayResolvesRedirectToDirectURL(t *testing.T) {
	srv := mediaHost(t, "image/png")
	up := &fakeUploader{base: srv.URL, failures: 1}
	img := writeImage(t, t.TempDir(), "img1.png")

	direct, err := NewRelayService(up, srv.Client(), testRetry, logging.Discard()).Relay(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, 2, up.calls, "a transient upload failure is retried")
	assert.Equal(t, "image/png", up.contentType)
	assert.True(t, strings.HasSuffix(up.key, ".png"))
	assert.Equal(t, srv.URL+"/files/"+up.key, direct)
}

func TestRelayUploadFailureAfterRetries(t *testing.T) {
	srv := mediaHost(t, "image/png")
	up := &fakeUploader{base: srv.URL, failures: 10}
	img := writeImage(t, t.TempDir(), "img1.png")

	_, err := NewRelayService(up, srv.Client(), testRetry, logging.Discard()).Relay(context.Background(), img)

	assert.ErrorIs(t, err, models.ErrUpload)
	assert.Equal(t, testRetry.MaxRetries+1, up.calls)
}

func TestRelayResolutionFailures(t *testing.T) {
	img := writeImage(t, t.TempDir(), "img1.png")

	t.Run("reference not found", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		t.Cleanup(srv.Close)
		up := &fakeUploader{base: srv.URL}

		_, err := NewRelayService(up, srv.Client(), testRetry, logging.Discard()).Relay(context.Background(), img)
		assert.ErrorIs(t, err, models.ErrResolution)
	})

	t.Run("final url is not an image", func(t *testing.T) {
		srv := mediaHost(t, "text/html; charset=utf-8")
		up := &fakeUploader{base: srv.URL}

		_, err := NewRelayService(up, srv.Client(), testRetry, logging.Discard()).Relay(context.Background(), img)
		assert.ErrorIs(t, err, models.ErrResolution)
		assert.Contains(t, err.Error(), "not an image")
	})
}

func TestRelayRejectsMissingOrNonImageFile(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{base: "http://unused"}
	relay := NewRelayService(up, http.DefaultClient, testRetry, logging.Discard())

	_, err := relay.Relay(context.Background(), filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, models.ErrUpload)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	_, err = relay.Relay(context.Background(), txt)
	assert.ErrorIs(t, err, models.ErrUpload)

	assert.Zero(t, up.calls)
}
