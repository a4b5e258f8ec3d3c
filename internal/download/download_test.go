package download

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qqgroup/go-group-backup/internal/base"
)

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"data":{"name":"旅行"}}`))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte("compressed"))
		_ = zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write(make([]byte, 1024))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestJSON(t *testing.T) {
	srv := newServer(t)
	r, err := Request{URL: srv.URL + "/json"}.JSON()
	require.NoError(t, err)
	assert.Equal(t, "旅行", r.Get("data.name").String())
}

func TestRequestGzip(t *testing.T) {
	srv := newServer(t)
	b, err := Request{URL: srv.URL + "/gzip"}.WithTimeout(time.Second).Bytes()
	require.NoError(t, err)
	assert.Equal(t, "compressed", string(b))
}

func TestRequestLimit(t *testing.T) {
	srv := newServer(t)
	_, err := Request{URL: srv.URL + "/big", Limit: 100}.Bytes()
	assert.True(t, errors.Is(err, ErrOverSize))
}

func TestRequestStatus(t *testing.T) {
	srv := newServer(t)
	path := filepath.Join(t.TempDir(), "a", "b.png")
	_, err := Request{URL: srv.URL + "/missing"}.WriteToFile(path)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteToFile(t *testing.T) {
	srv := newServer(t)
	path := filepath.Join(t.TempDir(), "albums", "x.bin")
	n, err := Request{URL: srv.URL + "/big"}.WriteToFile(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, n)
	_, err = os.Stat(path + ".download")
	assert.True(t, os.IsNotExist(err))
}

func TestRequestProxy(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "album.example.invalid", r.URL.Host)
		_, _ = w.Write([]byte("via proxy"))
	}))
	t.Cleanup(proxy.Close)
	old := base.Proxy
	base.Proxy = proxy.URL
	t.Cleanup(func() { base.Proxy = old })

	b, err := Request{URL: "http://album.example.invalid/m1"}.WithTimeout(7 * time.Second).Bytes()
	require.NoError(t, err)
	assert.Equal(t, "via proxy", string(b))
}
