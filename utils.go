package main

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"lukechampine.com/uint128"
)

// ipv4toUint32 accepts only a full dotted quad with decimal octets.
func ipv4toUint32(ipv4 string) (uint32, error) {
	parts := strings.Split(ipv4, ".")
	if len(parts) != 4 {
		return 0, errors.Errorf("invalid ipv4 passed: %s", ipv4)
	}

	var result uint32
	for _, v := range parts {
		if v == "" || !isDigits(v) {
			return 0, errors.Errorf("unable to parse ip octet %q", v)
		}
		octet, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return 0, errors.Wrapf(err, "unable to parse ip octet %v", v)
		}
		result = result<<8 | uint32(octet)
	}

	return result, nil
}

func uint32toIPv4String(ip uint32) string {
	return fmt.Sprintf(
		"%d.%d.%d.%d",
		(ip >> 24),
		(ip&0x00FFFFFF)>>16,
		(ip&0x0000FFFF)>>8,
		(ip & 0x000000FF),
	)
}

func ipv6toUint128(ipv6 string) (uint128.Uint128, error) {
	addr, err := netip.ParseAddr(ipv6)
	if err != nil {
		return uint128.Zero, errors.Wrap(err, "unable to parse ipv6")
	}
	if !addr.Is6() {
		return uint128.Zero, errors.Errorf("not an ipv6 address: %s", ipv6)
	}
	if addr.Zone() != "" {
		return uint128.Zero, errors.Errorf("zoned ipv6 address: %s", ipv6)
	}

	b := addr.As16()
	return uint128.New(binary.BigEndian.Uint64(b[8:]), binary.BigEndian.Uint64(b[:8])), nil
}
