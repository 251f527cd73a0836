package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// parseExpiry accepts either an RFC 3339 timestamp or a relative
// expression "in <N> {minutes|hours|days|weeks}". An empty string returns
// the zero Time, signaling "use the configured default" to
// delegation.Context.expiryFor.
func parseExpiry(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 3 || fields[0] != "in" {
		return time.Time{}, errors.Errorf("delegation: invalid expiry %q: want RFC 3339 or \"in <N> {minutes|hours|days|weeks}\"", s)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid expiry %q", s)
	}

	var unit time.Duration
	switch fields[2] {
	case "minute", "minutes":
		unit = time.Minute
	case "hour", "hours":
		unit = time.Hour
	case "day", "days":
		unit = 24 * time.Hour
	case "week", "weeks":
		unit = 7 * 24 * time.Hour
	default:
		return time.Time{}, errors.Errorf("delegation: invalid expiry unit %q in %q", fields[2], s)
	}

	return time.Now().Add(time.Duration(n) * unit), nil
}
