package main

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"lukechampine.com/uint128"
)

const btreeDegree = 32

type RangeEntry struct {
	Start uint128.Uint128
	End   uint128.Uint128
	Code  string
	Label string
}

// MalformedRowError is returned when a row bound can't be used as a range key.
type MalformedRowError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row %d: %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *MalformedRowError) Cause() error { return e.Err }

func (e *MalformedRowError) Unwrap() error { return e.Err }

type rangeItem struct {
	start uint128.Uint128
	idx   int
}

func (i *rangeItem) Less(than btree.Item) bool {
	return i.start.Cmp(than.(*rangeItem).start) < 0
}

// RangeTable keeps entries in source order. When they are disjoint the starts
// are indexed in a btree, otherwise every lookup scans in source order.
type RangeTable struct {
	entries []RangeEntry
	tree    *btree.BTree
}

func LoadRangeTable(rows []RangeRow) (*RangeTable, error) {
	entries := make([]RangeEntry, 0, len(rows))
	for i, row := range rows {
		start, err := parseRangeBound(row.Start)
		if err != nil {
			return nil, &MalformedRowError{Row: i, Field: "start", Value: row.Start, Err: err}
		}
		end, err := parseRangeBound(row.End)
		if err != nil {
			return nil, &MalformedRowError{Row: i, Field: "end", Value: row.End, Err: err}
		}
		if end.Cmp(start) < 0 {
			return nil, &MalformedRowError{Row: i, Field: "end", Value: row.End, Err: errors.New("end is below start")}
		}
		entries = append(entries, RangeEntry{
			Start: start,
			End:   end,
			Code:  row.Code,
			Label: row.Country,
		})
	}

	t := &RangeTable{entries: entries}
	if overlap := t.firstOverlap(); overlap >= 0 {
		logrus.Warnf("range rows overlap at row %d, falling back to linear lookups", overlap)
		return t, nil
	}

	t.tree = btree.New(btreeDegree)
	for i := range entries {
		t.tree.ReplaceOrInsert(&rangeItem{start: entries[i].Start, idx: i})
	}

	return t, nil
}

// firstOverlap returns the source index of a row that overlaps an earlier
// starting row, or -1 when all rows are disjoint.
func (t *RangeTable) firstOverlap() int {
	order := make([]int, len(t.entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.entries[order[a]].Start.Cmp(t.entries[order[b]].Start) < 0
	})
	for k := 1; k < len(order); k++ {
		if t.entries[order[k]].Start.Cmp(t.entries[order[k-1]].End) <= 0 {
			return order[k]
		}
	}

	return -1
}

func (t *RangeTable) Len() int {
	return len(t.entries)
}

// Find returns the label of the first entry with Start <= key <= End.
func (t *RangeTable) Find(key uint128.Uint128) (string, bool) {
	if t.tree == nil {
		for i := range t.entries {
			if t.entries[i].Start.Cmp(key) <= 0 && key.Cmp(t.entries[i].End) <= 0 {
				return t.entries[i].Label, true
			}
		}
		return "", false
	}

	idx := -1
	t.tree.DescendLessOrEqual(&rangeItem{start: key}, func(item btree.Item) bool {
		idx = item.(*rangeItem).idx
		return false
	})
	if idx < 0 || key.Cmp(t.entries[idx].End) > 0 {
		return "", false
	}

	return t.entries[idx].Label, true
}

// OverrideLabel relabels the entry starting exactly at key.
func (t *RangeTable) OverrideLabel(key uint128.Uint128, label string) bool {
	if t.tree == nil {
		found := false
		for i := range t.entries {
			if t.entries[i].Start.Equals(key) {
				t.entries[i].Label = label
				found = true
			}
		}
		return found
	}

	item := t.tree.Get(&rangeItem{start: key})
	if item == nil {
		return false
	}
	t.entries[item.(*rangeItem).idx].Label = label

	return true
}

func (t *RangeTable) firstOtherThan(label string) (RangeEntry, bool) {
	for _, e := range t.entries {
		if e.Label != label {
			return e, true
		}
	}

	return RangeEntry{}, false
}

// parseRangeBound accepts a decimal integer, or a float formatted integral
// value such as "1.6777216e+07".
func parseRangeBound(s string) (uint128.Uint128, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uint128.Zero, errors.New("empty bound")
	}
	if isDigits(s) {
		v, err := uint128.FromString(s)
		if err != nil {
			return uint128.Zero, errors.Wrap(err, "bound overflows 128 bits")
		}
		return v, nil
	}

	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		return uint128.Zero, errors.Wrap(err, "bound is not a number")
	}
	if f.Sign() < 0 {
		return uint128.Zero, errors.New("bound is negative")
	}
	if !f.IsInt() {
		return uint128.Zero, errors.New("bound is not an integer")
	}
	n, _ := f.Int(nil)
	if n.BitLen() > 128 {
		return uint128.Zero, errors.New("bound overflows 128 bits")
	}

	return uint128.FromBig(n), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
