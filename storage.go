package main

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const retryInterval = 1 * time.Hour

type StorageStats struct {
	Rows    int       `json:"rows"`
	BuiltAt time.Time `json:"built_at"`
}

// ResolverStorage holds the current resolver and swaps in a new one on
// refresh. A failed refresh keeps serving the previous resolver.
type ResolverStorage struct {
	config     *Config
	dataSource RangeDataSource
	resolver   *Resolver
	builtAt    time.Time
	lock       sync.RWMutex
	buildLock  sync.Mutex
}

func NewResolverStorage(config *Config, dataSource RangeDataSource) (*ResolverStorage, error) {
	s := &ResolverStorage{
		config:     config,
		dataSource: dataSource,
	}

	if err := s.Refresh(); err != nil {
		return nil, errors.Wrap(err, "unable to initialize storage")
	}

	return s, nil
}

func (s *ResolverStorage) Refresh() error {
	s.buildLock.Lock()
	defer s.buildLock.Unlock()

	resolver, err := s.build()
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.resolver = resolver
	s.builtAt = time.Now()
	s.lock.Unlock()

	return nil
}

func (s *ResolverStorage) current() *Resolver {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.resolver
}

func (s *ResolverStorage) Resolve(address string) string {
	return s.current().Resolve(address)
}

func (s *ResolverStorage) ResolveBatch(addresses []string) []string {
	return s.current().ResolveBatch(addresses)
}

func (s *ResolverStorage) Stats() StorageStats {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return StorageStats{
		Rows:    s.resolver.Len(),
		BuiltAt: s.builtAt,
	}
}

// RunUpdates refreshes whenever the data source says new data is due, until
// stop is closed.
func (s *ResolverStorage) RunUpdates(stop <-chan struct{}) {
	if !s.dataSource.SupportUpdates() {
		return
	}

	next := s.dataSource.GetNextUpdateTime()
	for {
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		logrus.Debugf("next range database update at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.Refresh(); err != nil {
			logrus.Warnf("range database refresh failed, retrying in %s: %v", retryInterval, err)
			next = time.Now().Add(retryInterval)
			continue
		}
		next = s.dataSource.GetNextUpdateTime()
	}
}

func (s *ResolverStorage) build() (*Resolver, error) {
	logrus.Info("rebuilding the storage...")

	gStart := time.Now()

	logrus.Debug("extracting the data...")

	start := time.Now()

	defer s.dataSource.Cleanup()
	err := s.dataSource.Load()
	if err != nil {
		return nil, err
	}
	logrus.Debugf("done, took %v sec", time.Since(start).Seconds())
	logrus.Debug("building the table...")

	start = time.Now()

	resolver, err := NewResolver(s.dataSource.GetRows())
	if err != nil {
		return nil, err
	}

	logrus.Debugf("done, took %v sec", time.Since(start).Seconds())
	logrus.Infof("extracted & rebuilt %d ranges, took %v sec", resolver.Len(), time.Since(gStart).Seconds())

	return resolver, nil
}
