package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeX struct {
	tweets      []transfer.TweetRequest
	uploads     int32
	tweetStatus []int
	calls       int32
}

func (f *fakeX) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/images/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	})
	mux.HandleFunc("/2/media/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tweet_image", r.FormValue("media_category"))
		n := atomic.AddInt32(&f.uploads, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "m" + string(rune('0'+n))}})
	})
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		call := int(atomic.AddInt32(&f.calls, 1)) - 1
		if call < len(f.tweetStatus) && f.tweetStatus[call] != http.StatusCreated {
			w.WriteHeader(f.tweetStatus[call])
			_, _ = io.WriteString(w, `{"title":"error"}`)
			return
		}
		var body transfer.TweetRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.tweets = append(f.tweets, body)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"111","text":"ok"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestTwitter(srv *httptest.Server) PlatformPublisher {
	return NewTwitterService(config.X{BearerToken: "token-1", APIURL: srv.URL}, srv.Client(), testRetry, logging.Discard())
}

func TestTwitterPublishTextOnly(t *testing.T) {
	fx := &fakeX{}
	srv := fx.server(t)

	out, err := newTestTwitter(srv).Publish(context.Background(), &PublishRequest{UID: "0301a", Caption: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "111", out.PlatformPostID)
	assert.Equal(t, "https://x.com/i/status/111", out.Permalink)
	assert.False(t, out.Truncated)
	require.Len(t, fx.tweets, 1)
	assert.Equal(t, "hello", fx.tweets[0].Text)
	assert.Nil(t, fx.tweets[0].Media)
}

func TestTwitterPublishUploadsAtMostFourImages(t *testing.T) {
	fx := &fakeX{}
	srv := fx.server(t)
	var urls []string
	for i := 0; i < 6; i++ {
		urls = append(urls, srv.URL+"/images/"+string(rune('a'+i))+".png")
	}

	_, err := newTestTwitter(srv).Publish(context.Background(), &PublishRequest{UID: "0301a", Caption: "pics", MediaURLs: urls})
	require.NoError(t, err)

	assert.Equal(t, int32(4), atomic.LoadInt32(&fx.uploads))
	require.Len(t, fx.tweets, 1)
	require.NotNil(t, fx.tweets[0].Media)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, fx.tweets[0].Media.MediaIDs)
}

func TestTwitterPublishAuthFailureIsPlatformError(t *testing.T) {
	fx := &fakeX{tweetStatus: []int{http.StatusUnauthorized}}
	srv := fx.server(t)

	_, err := newTestTwitter(srv).Publish(context.Background(), &PublishRequest{UID: "0301a", Caption: "hello"})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPlatform)
	var pe *models.PlatformError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.PlatformX, pe.Platform)
	assert.Equal(t, "auth", pe.Reason)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fx.calls), "auth failures are not retried")
}

func TestTwitterPublishRetriesRateLimitOnly(t *testing.T) {
	fx := &fakeX{tweetStatus: []int{http.StatusTooManyRequests, http.StatusCreated}}
	srv := fx.server(t)

	out, err := newTestTwitter(srv).Publish(context.Background(), &PublishRequest{UID: "0301a", Caption: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "111", out.PlatformPostID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fx.calls))

	fx = &fakeX{tweetStatus: []int{http.StatusBadGateway, http.StatusCreated}}
	srv = fx.server(t)
	_, err = newTestTwitter(srv).Publish(context.Background(), &PublishRequest{UID: "0301a", Caption: "hello"})
	assert.ErrorIs(t, err, models.ErrPlatform)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fx.calls), "a 5xx may have created the tweet")
}

func TestTwitterPublishTruncatesLongText(t *testing.T) {
	fx := &fakeX{}
	srv := fx.server(t)
	long := strings.Repeat("word ", 2500) // 12500 runes

	out, err := newTestTwitter(srv).Publish(context.Background(), &PublishRequest{UID: "0301a", Caption: long})
	require.NoError(t, err)

	assert.True(t, out.Truncated)
	assert.Equal(t, 12500, out.OriginalLength)
	require.Len(t, fx.tweets, 1)
	assert.LessOrEqual(t, len([]rune(fx.tweets[0].Text)), maxTweetLength)
	assert.True(t, strings.HasSuffix(fx.tweets[0].Text, "word"))
}

func TestTwitterPublishRejectsOversizedImage(t *testing.T) {
	var downloads int32
	mux := http.NewServeMux()
	mux.HandleFunc("/images/huge.png", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downloads, 1)
		_, _ = w.Write(make([]byte, maxImageBytes+1))
	})
	mux.HandleFunc("/2/media/upload", func(w http.ResponseWriter, r *http.Request) {
		t.Error("oversized image must not be uploaded")
	})
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no tweet is created when media fails")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := newTestTwitter(srv).Publish(context.Background(), &PublishRequest{
		UID:       "0301a",
		Caption:   "caption",
		MediaURLs: []string{srv.URL + "/images/huge.png"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "image limit")
	assert.Equal(t, int32(1), atomic.LoadInt32(&downloads), "size errors are not retried")
}

func TestTruncateText(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		out, truncated := truncateText("hello world", 20)
		assert.Equal(t, "hello world", out)
		assert.False(t, truncated)
	})

	t.Run("breaks at a space in the final fifth", func(t *testing.T) {
		out, truncated := truncateText("aaaaaaaaa bbbbbbbbbb", 15)
		assert.True(t, truncated)
		assert.Equal(t, "aaaaaaaaa bbbbb", out, "space at index 9 is not past 80% of 15")

		out, _ = truncateText("aaaaaaaaaaaaa bbbbbb", 15)
		assert.Equal(t, "aaaaaaaaaaaaa", out)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		out, truncated := truncateText("滷肉飯好吃", 3)
		assert.True(t, truncated)
		assert.Equal(t, "滷肉飯", out)
	})
}
