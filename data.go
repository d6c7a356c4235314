package main

import "time"

// RangeRow is one decoded database record. Bounds stay textual until the
// range table parses them.
type RangeRow struct {
	Start   string
	End     string
	Code    string
	Country string
}

type RangeDataSource interface {
	Load() error
	GetRows() []RangeRow
	SupportUpdates() bool
	GetNextUpdateTime() time.Time
	Cleanup() error
}

func BuildRangeDataSource(conf *Config) RangeDataSource {
	if conf.CSVPath != "" {
		return NewFileRangeDataSource(conf.CSVPath)
	}
	return NewIP2LocationRemoteDataSource(conf)
}
