package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"lukechampine.com/uint128"
)

const (
	LabelNoCountry = "-"
	LabelUnknown   = "Unknown"
	LabelError     = "Error"
	LabelPrivate   = "Private/Internal"
	LabelLocalHost = "Local Host"
)

// 1.0.0.0, the first address the provider assigns to a country.
const firstCountryIPv4 uint32 = 1 << 24

var (
	ErrEmptyDatabase = errors.New("range database is empty")
	ErrNoCountryRow  = errors.New("range database has no row with a country")
)

type reservedOverride struct {
	network uint32
	label   string
}

var reservedOverrides = []reservedOverride{
	{network: 10 << 24, label: LabelPrivate},
	{network: 172<<24 | 16<<16, label: LabelPrivate},
	{network: 169<<24 | 254<<16, label: LabelPrivate},
	{network: 192<<24 | 168<<16, label: LabelPrivate},
	{network: 127 << 24, label: LabelLocalHost},
}

// Resolver maps addresses to labels. It is read-only once NewResolver
// returns and safe for concurrent use.
type Resolver struct {
	table  *RangeTable
	offset uint128.Uint128
}

func NewResolver(rows []RangeRow) (*Resolver, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDatabase
	}
	table, err := LoadRangeTable(rows)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load range table")
	}

	// The database keys ipv4 ranges inside ipv6 space; the first country row
	// is where 1.0.0.0 landed.
	anchor, ok := table.firstOtherThan(LabelNoCountry)
	if !ok {
		return nil, ErrNoCountryRow
	}
	r := &Resolver{
		table:  table,
		offset: anchor.Start.SubWrap(uint128.From64(uint64(firstCountryIPv4))),
	}

	for _, o := range reservedOverrides {
		if !table.OverrideLabel(r.ipv4Key(o.network), o.label) {
			logrus.Debugf("no range starts at %s, %q not applied", uint32toIPv4String(o.network), o.label)
		}
	}

	return r, nil
}

func (r *Resolver) Offset() uint128.Uint128 {
	return r.offset
}

func (r *Resolver) Len() int {
	return r.table.Len()
}

func (r *Resolver) ipv4Key(ip uint32) uint128.Uint128 {
	return uint128.From64(uint64(ip)).AddWrap(r.offset)
}

// addressKey picks the family by the characters present: a dot means ipv4,
// otherwise a colon means ipv6.
func (r *Resolver) addressKey(address string) (uint128.Uint128, error) {
	switch {
	case strings.Contains(address, "."):
		ip, err := ipv4toUint32(address)
		if err != nil {
			return uint128.Zero, err
		}
		return r.ipv4Key(ip), nil
	case strings.Contains(address, ":"):
		return ipv6toUint128(address)
	default:
		return uint128.Zero, errors.Errorf("not an ip address: %q", address)
	}
}

// Resolve never fails: bad input yields LabelError and a miss LabelUnknown.
func (r *Resolver) Resolve(address string) string {
	key, err := r.addressKey(address)
	if err != nil {
		logrus.Debug(err)
		return LabelError
	}
	label, ok := r.table.Find(key)
	if !ok {
		return LabelUnknown
	}

	return label
}

func (r *Resolver) ResolveBatch(addresses []string) []string {
	out := make([]string, len(addresses))
	for i, address := range addresses {
		out[i] = r.Resolve(address)
	}

	return out
}
