package main

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDataSource struct {
	rows     []RangeRow
	err      error
	next     time.Time
	updates  bool
	loads    int32
	cleanups int32
}

func (s *fakeDataSource) Load() error {
	atomic.AddInt32(&s.loads, 1)
	return s.err
}

func (s *fakeDataSource) GetRows() []RangeRow { return s.rows }

func (s *fakeDataSource) SupportUpdates() bool { return s.updates }

func (s *fakeDataSource) GetNextUpdateTime() time.Time { return s.next }

func (s *fakeDataSource) Cleanup() error {
	atomic.AddInt32(&s.cleanups, 1)
	return nil
}

func copyFixture(t *testing.T) string {
	t.Helper()

	content, err := os.ReadFile(testCSVPath)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), DefaultCSVFileName)
	require.NoError(t, os.WriteFile(path, content, 0644))

	return path
}

func TestResolverStorageFromFile(t *testing.T) {
	path := copyFixture(t)

	storage, err := NewResolverStorage(DefaultConfig(), NewFileRangeDataSource(path))
	require.NoError(t, err)

	assert.Equal(t, "Germany", storage.Resolve("153.98.72.15"))
	assert.Equal(t, []string{LabelLocalHost, LabelError}, storage.ResolveBatch([]string{"127.0.0.1", "nope"}))

	stats := storage.Stats()
	assert.Equal(t, 16, stats.Rows)
	assert.False(t, stats.BuiltAt.IsZero())
}

func TestResolverStorageRefreshKeepsOldOnFailure(t *testing.T) {
	path := copyFixture(t)

	storage, err := NewResolverStorage(DefaultConfig(), NewFileRangeDataSource(path))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("\"x\",\"1\",\"US\",\"United States of America\"\n"), 0644))
	require.Error(t, storage.Refresh())
	assert.Equal(t, "Australia", storage.Resolve("1.0.0.1"))

	require.NoError(t, os.WriteFile(path, []byte("\"16777216\",\"16777471\",\"US\",\"United States of America\"\n"), 0644))
	require.NoError(t, storage.Refresh())
	assert.Equal(t, "United States of America", storage.Resolve("1.0.0.1"))
	assert.Equal(t, 1, storage.Stats().Rows)
}

func TestNewResolverStorageFails(t *testing.T) {
	source := &fakeDataSource{err: errors.New("boom")}

	_, err := NewResolverStorage(DefaultConfig(), source)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.cleanups))

	_, err = NewResolverStorage(DefaultConfig(), &fakeDataSource{})
	assert.Equal(t, ErrEmptyDatabase, errors.Cause(err))
}

func TestResolverStorageRunUpdates(t *testing.T) {
	source := &fakeDataSource{
		rows:    []RangeRow{{Start: "16777216", End: "16777471", Code: "AU", Country: "Australia"}},
		updates: true,
		next:    time.Now().Add(-time.Second),
	}
	storage, err := NewResolverStorage(DefaultConfig(), source)
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		storage.RunUpdates(stop)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&source.loads) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	close(stop)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunUpdates did not stop")
	}
}

func TestResolverStorageRunUpdatesWithoutSupport(t *testing.T) {
	source := &fakeDataSource{
		rows: []RangeRow{{Start: "16777216", End: "16777471", Code: "AU", Country: "Australia"}},
	}
	storage, err := NewResolverStorage(DefaultConfig(), source)
	require.NoError(t, err)

	storage.RunUpdates(make(chan struct{}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.loads))
}

func BenchmarkFindAvail(b *testing.B) {
	rows, err := readRangeFile(testCSVPath)
	if err != nil {
		b.Fatal(err)
	}
	storage, err := NewResolverStorage(DefaultConfig(), &fakeDataSource{rows: rows})
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		x := storage.Resolve("153.98.72.15")
		_ = x
	}
}
