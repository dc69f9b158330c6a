package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dottedTSRe = regexp.MustCompile(`^\d{10}\.\d{6}$`)
	packedTSRe = regexp.MustCompile(`^\d{16}$`)
)

// NormalizeTS accepts a Slack timestamp either in its canonical dotted form
// ("1700000000.000100") or packed as it appears in permalinks
// ("1700000000000100") and returns the dotted form.
func NormalizeTS(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case dottedTSRe.MatchString(raw):
		return raw, nil
	case packedTSRe.MatchString(raw):
		return raw[:10] + "." + raw[10:], nil
	default:
		return "", Errorf(KindInvalidArgument, "malformed message timestamp %q", raw)
	}
}

// PackTS drops the dot, giving the form used in permalink paths.
func PackTS(ts string) string {
	return strings.Replace(ts, ".", "", 1)
}

// splitTS returns the seconds and microseconds of a timestamp. Missing or
// short fractional parts are right-padded, so "1700000000.1" is 100000us.
func splitTS(ts string) (int64, int64, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse ts %q: %w", ts, err)
	}
	if frac == "" {
		return s, 0, nil
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	frac += strings.Repeat("0", 6-len(frac))
	us, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse ts %q: %w", ts, err)
	}
	return s, us, nil
}

// CompareTS orders two timestamps numerically. Unparseable values sort
// before parseable ones and fall back to string comparison among themselves.
func CompareTS(a, b string) int {
	as, aus, aerr := splitTS(a)
	bs, bus, berr := splitTS(b)
	switch {
	case aerr != nil && berr != nil:
		return strings.Compare(a, b)
	case aerr != nil:
		return -1
	case berr != nil:
		return 1
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	case aus < bus:
		return -1
	case aus > bus:
		return 1
	}
	return 0
}

// TSTime converts a timestamp to UTC wall time. The zero time is returned
// for unparseable input.
func TSTime(ts string) time.Time {
	s, us, err := splitTS(ts)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(s, us*int64(time.Microsecond)).UTC()
}

// UnixTS formats t as a Slack timestamp with microsecond precision.
func UnixTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}
