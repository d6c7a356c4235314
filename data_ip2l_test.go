package main

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	server   *httptest.Server
	hits     int32
	lock     sync.Mutex
	status   int
	body     []byte
	lastFile string
	lastTok  string
}

func (p *fakeProvider) respond(status int, body []byte) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.status = status
	p.body = body
}

func (p *fakeProvider) lastQuery() (file, token string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.lastFile, p.lastTok
}

func newFakeProvider(t *testing.T, body []byte) *fakeProvider {
	t.Helper()

	p := &fakeProvider{status: http.StatusOK, body: body}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.hits, 1)
		p.lock.Lock()
		defer p.lock.Unlock()
		p.lastFile = r.URL.Query().Get("file")
		p.lastTok = r.URL.Query().Get("token")
		w.WriteHeader(p.status)
		w.Write(p.body)
	}))
	t.Cleanup(p.server.Close)

	return p
}

func zipArchive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func fixtureArchive(t *testing.T) []byte {
	t.Helper()

	csv, err := os.ReadFile(testCSVPath)
	require.NoError(t, err)

	return zipArchive(t, map[string][]byte{
		"README_LITE.TXT":  []byte("readme"),
		DefaultCSVFileName: csv,
		"LICENSE_LITE.TXT": []byte("license"),
	})
}

func newTestRemoteSource(t *testing.T, p *fakeProvider, now time.Time) *IP2LocationRemoteDataSource {
	t.Helper()

	conf := DefaultConfig()
	conf.CacheDir = filepath.Join(t.TempDir(), "db")
	conf.DownloadURL = p.server.URL + "/download/"
	conf.DownloadToken = "secret"
	conf.DownloadTimeout = 5 * time.Second

	s := NewIP2LocationRemoteDataSource(conf)
	s.now = func() time.Time { return now }

	return s
}

func TestRemoteSourceDownloadsWhenCacheMissing(t *testing.T) {
	p := newFakeProvider(t, fixtureArchive(t))
	s := newTestRemoteSource(t, p, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.Load())
	assert.Len(t, s.GetRows(), 16)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.hits))
	file, token := p.lastQuery()
	assert.Equal(t, DefaultDatabaseCode, file)
	assert.Equal(t, "secret", token)

	marker, err := os.ReadFile(s.markerPath())
	require.NoError(t, err)
	assert.Equal(t, "2026-10", string(marker))

	require.NoError(t, s.Cleanup())
	assert.Nil(t, s.GetRows())
}

func TestRemoteSourceUsesCacheWithinPeriod(t *testing.T) {
	p := newFakeProvider(t, fixtureArchive(t))
	s := newTestRemoteSource(t, p, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.Load())
	s.now = func() time.Time { return time.Date(2026, 10, 31, 23, 59, 0, 0, time.UTC) }
	require.NoError(t, s.Load())
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.hits))

	s.now = func() time.Time { return time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Load())
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.hits))

	marker, err := os.ReadFile(s.markerPath())
	require.NoError(t, err)
	assert.Equal(t, "2026-11", string(marker))
}

func TestRemoteSourceFailedDownloadKeepsCache(t *testing.T) {
	p := newFakeProvider(t, fixtureArchive(t))
	s := newTestRemoteSource(t, p, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Load())

	before, err := os.ReadFile(s.csvPath())
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC) }

	p.respond(http.StatusInternalServerError, nil)
	assert.Error(t, s.Load())

	p.respond(http.StatusOK, []byte("NO PERMISSION"))
	assert.Error(t, s.Load())

	p.respond(http.StatusOK, zipArchive(t, map[string][]byte{"OTHER.CSV": []byte("x")}))
	assert.Error(t, s.Load())

	after, err := os.ReadFile(s.csvPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	marker, err := os.ReadFile(s.markerPath())
	require.NoError(t, err)
	assert.Equal(t, "2026-10", string(marker))
}

func TestRemoteSourceNextUpdateTime(t *testing.T) {
	p := newFakeProvider(t, nil)
	s := newTestRemoteSource(t, p, time.Date(2026, 12, 15, 8, 30, 0, 0, time.UTC))

	assert.True(t, s.SupportUpdates())
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), s.GetNextUpdateTime())
}
