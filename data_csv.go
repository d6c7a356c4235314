package main

import (
	"encoding/csv"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	rangeRowFields  = 4
	rangesInitCount = 1024
)

func parseRangeRows(r io.Reader) ([]RangeRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = rangeRowFields
	cr.ReuseRecord = true

	rows := make([]RangeRow, 0, rangesInitCount)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "CSV reading error")
		}
		rows = append(rows, RangeRow{
			Start:   record[0],
			End:     record[1],
			Code:    record[2],
			Country: record[3],
		})
	}

	return rows, nil
}

func readRangeFile(path string) ([]RangeRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open range file")
	}
	defer f.Close()

	rows, err := parseRangeRows(f)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}

	return rows, nil
}

// FileRangeDataSource reads an already downloaded CSV snapshot.
type FileRangeDataSource struct {
	path string
	rows []RangeRow
}

func NewFileRangeDataSource(path string) *FileRangeDataSource {
	return &FileRangeDataSource{
		path: path,
	}
}

func (s *FileRangeDataSource) Load() error {
	rows, err := readRangeFile(s.path)
	if err != nil {
		return err
	}
	s.rows = rows

	logrus.Debugf("got %d range rows from %s", len(rows), s.path)

	return nil
}

func (s *FileRangeDataSource) GetRows() []RangeRow {
	return s.rows
}

func (s *FileRangeDataSource) SupportUpdates() bool {
	return false
}

func (s *FileRangeDataSource) GetNextUpdateTime() time.Time {
	return time.Time{}
}

func (s *FileRangeDataSource) Cleanup() error {
	s.rows = nil

	return nil
}
