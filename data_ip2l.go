package main

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDownloadURL  = "http://www.ip2location.com/download/"
	DefaultDatabaseCode = "DB1LITEIPV6"
	DefaultCSVFileName  = "IP2LOCATION-LITE-DB1.IPV6.CSV"

	periodMarkerFileName = ".db_period"
	periodLayout         = "2006-01"
)

// IP2LocationRemoteDataSource keeps a monthly copy of the IP2Location LITE
// CSV in the cache dir and only downloads when the month has changed.
type IP2LocationRemoteDataSource struct {
	config *Config
	client *http.Client
	now    func() time.Time
	rows   []RangeRow
}

func NewIP2LocationRemoteDataSource(conf *Config) *IP2LocationRemoteDataSource {
	return &IP2LocationRemoteDataSource{
		config: conf,
		client: &http.Client{
			Timeout: conf.DownloadTimeout,
		},
		now: time.Now,
	}
}

func (s *IP2LocationRemoteDataSource) Load() error {
	csvPath := s.csvPath()

	stale, err := s.isStale(csvPath)
	if err != nil {
		return err
	}
	if stale {
		logrus.Info("range database is stale, downloading a new one")
		if err := s.refresh(csvPath); err != nil {
			return err
		}
	}

	rows, err := readRangeFile(csvPath)
	if err != nil {
		return err
	}
	s.rows = rows

	logrus.Debugf("got %d range rows", len(rows))

	return nil
}

func (s *IP2LocationRemoteDataSource) GetRows() []RangeRow {
	return s.rows
}

func (s *IP2LocationRemoteDataSource) SupportUpdates() bool {
	return true
}

// GetNextUpdateTime is the start of the next calendar month.
func (s *IP2LocationRemoteDataSource) GetNextUpdateTime() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
}

func (s *IP2LocationRemoteDataSource) Cleanup() error {
	s.rows = nil

	return nil
}

func (s *IP2LocationRemoteDataSource) csvPath() string {
	return filepath.Join(s.config.CacheDir, s.config.CSVFileName)
}

func (s *IP2LocationRemoteDataSource) markerPath() string {
	return filepath.Join(s.config.CacheDir, periodMarkerFileName)
}

func (s *IP2LocationRemoteDataSource) currentPeriod() string {
	return s.now().Format(periodLayout)
}

func (s *IP2LocationRemoteDataSource) isStale(csvPath string) (bool, error) {
	if _, err := os.Stat(csvPath); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrap(err, "unable to stat range file")
	}

	marker, err := os.ReadFile(s.markerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrap(err, "unable to read period marker")
	}

	return strings.TrimSpace(string(marker)) != s.currentPeriod(), nil
}

func (s *IP2LocationRemoteDataSource) refresh(csvPath string) error {
	if err := os.MkdirAll(s.config.CacheDir, 0755); err != nil {
		return errors.Wrap(err, "unable to create cache dir")
	}

	content, err := s.download()
	if err != nil {
		return err
	}
	if err := s.extract(content, csvPath); err != nil {
		return err
	}

	period := s.currentPeriod()
	if err := os.WriteFile(s.markerPath(), []byte(period), 0644); err != nil {
		return errors.Wrap(err, "unable to write period marker")
	}
	logrus.Infof("range database refreshed for %s", period)

	return nil
}

func (s *IP2LocationRemoteDataSource) downloadURL() (string, error) {
	u, err := url.Parse(s.config.DownloadURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid download url")
	}
	q := u.Query()
	q.Set("token", s.config.DownloadToken)
	q.Set("file", s.config.DatabaseCode)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (s *IP2LocationRemoteDataSource) download() ([]byte, error) {
	u, err := s.downloadURL()
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Get(u)
	if err != nil {
		return nil, errors.Wrap(err, "unable to get range database")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected download status: %s", resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response bytes")
	}

	logrus.Debugf("downloaded zip file, %d bytes", len(content))

	return content, nil
}

// extract writes the CSV entry of the archive next to dest and renames it
// into place, so a failed download never clobbers the cached copy.
func (s *IP2LocationRemoteDataSource) extract(content []byte, dest string) error {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return errors.Wrap(err, "unable to open zip archive")
	}

	for _, f := range archive.File {
		if !strings.HasSuffix(f.Name, s.config.CSVFileName) {
			continue
		}
		return extractFile(f, dest)
	}

	return errors.Errorf("%s not found in archive", s.config.CSVFileName)
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrap(err, "can't open file in archive")
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return errors.Wrap(err, "can't read file in archive")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to write temp file")
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errors.Wrap(err, "unable to move range file into place")
	}

	return nil
}
