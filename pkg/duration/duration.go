// Package duration turns human duration expressions such as "7 days" or
// "3mo" into an absolute cutoff instant.
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	errs "tweetpull/pkg/errors"
)

// Default is the look-back window used when none is given
const Default = "30 days"

// Unit is a calendar or clock unit
type Unit string

const (
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
	Week   Unit = "week"
	Month  Unit = "month"
	Year   Unit = "year"
)

var unitAliases = map[string]Unit{
	"minute": Minute, "minutes": Minute, "min": Minute, "mins": Minute,
	"hour": Hour, "hours": Hour, "hr": Hour, "hrs": Hour, "h": Hour,
	"day": Day, "days": Day, "d": Day,
	"week": Week, "weeks": Week, "wk": Week, "wks": Week, "w": Week,
	"month": Month, "months": Month, "mo": Month, "mos": Month,
	"year": Year, "years": Year, "yr": Year, "yrs": Year, "y": Year,
}

var exprPattern = regexp.MustCompile(`^(\d+)\s*([a-z]+)$`)

// Duration is a parsed look-back window
type Duration struct {
	Magnitude int
	Unit      Unit
}

func (d Duration) String() string {
	if d.Magnitude == 1 {
		return fmt.Sprintf("1 %s", d.Unit)
	}
	return fmt.Sprintf("%d %ss", d.Magnitude, d.Unit)
}

// Parse parses an expression of the form "<magnitude> <unit>"
func Parse(expr string) (Duration, error) {
	normalized := strings.ToLower(strings.TrimSpace(expr))
	if normalized == "" {
		return Duration{}, errs.New(errs.KindInvalidDuration, "empty duration expression")
	}

	m := exprPattern.FindStringSubmatch(normalized)
	if m == nil {
		return Duration{}, errs.Newf(errs.KindInvalidDuration,
			"cannot parse %q, use a form like \"7 days\" or \"1 month\"", expr)
	}

	magnitude, err := strconv.Atoi(m[1])
	if err != nil {
		return Duration{}, errs.Wrap(errs.KindInvalidDuration, err, fmt.Sprintf("magnitude of %q", expr))
	}
	if magnitude <= 0 {
		return Duration{}, errs.Newf(errs.KindInvalidDuration, "magnitude must be positive in %q", expr)
	}

	unit, ok := unitAliases[m[2]]
	if !ok {
		return Duration{}, errs.Newf(errs.KindInvalidDuration, "unknown unit %q in %q", m[2], expr)
	}

	return Duration{Magnitude: magnitude, Unit: unit}, nil
}

// Before returns now minus d in UTC. Months and years use calendar
// arithmetic, so "1 month" before March 31 normalizes the way time.AddDate does.
func (d Duration) Before(now time.Time) (time.Time, error) {
	now = now.UTC()
	n := d.Magnitude

	switch d.Unit {
	case Minute:
		return subClock(now, n, time.Minute)
	case Hour:
		return subClock(now, n, time.Hour)
	case Day:
		return now.AddDate(0, 0, -n), nil
	case Week:
		if n > math.MaxInt/7 {
			return time.Time{}, errs.Newf(errs.KindInvalidDuration, "%s is out of range", d)
		}
		return now.AddDate(0, 0, -7*n), nil
	case Month:
		return now.AddDate(0, -n, 0), nil
	case Year:
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, errs.Newf(errs.KindInvalidDuration, "unknown unit %q", d.Unit)
	}
}

func subClock(now time.Time, n int, unit time.Duration) (time.Time, error) {
	if int64(n) > math.MaxInt64/int64(unit) {
		return time.Time{}, errs.Newf(errs.KindInvalidDuration, "%d %s is out of range", n, unit)
	}
	return now.Add(-time.Duration(n) * unit), nil
}

// Resolve parses expr and returns the cutoff instant relative to now
func Resolve(now time.Time, expr string) (time.Time, error) {
	d, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return d.Before(now)
}
