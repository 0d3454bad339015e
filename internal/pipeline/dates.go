package pipeline

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// JST is the fixed UTC+9 offset every sheet timestamp is expressed in.
var JST = time.FixedZone("JST", 9*60*60)

// ErrUnparsableDate marks a raw date cell that matches no known pattern.
var ErrUnparsableDate = errors.New("unparsable date value")

const (
	dailyTabLayout = "20060102"
	postedAtLayout = "2006/01/02 15:04:05"

	// maxSerialDays bounds the numeric day-count representation; anything
	// outside is treated as a stray number, not a date.
	maxSerialDays = 200000
)

// serialEpoch is day zero of the day-count representation, one day before
// 1900-01-01.
var serialEpoch = time.Date(1899, 12, 31, 0, 0, 0, 0, JST)

var monthDayClock = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})$`)

// DailyTab names the destination tab for the given run time.
func DailyTab(now time.Time) string {
	return now.In(JST).Format(dailyTabLayout)
}

// ParseSheetDate normalizes the heterogeneous date strings the source tab
// carries into a JST timestamp. Patterns are tried in a fixed order and the
// first match wins. Month/day values without a year borrow the year of now,
// which can misattribute records read across a New Year boundary; that
// behavior is intentional and mirrors the upstream feed convention.
func ParseSheetDate(raw string, now time.Time) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, ErrUnparsableDate
	}

	if m := monthDayClock.FindStringSubmatch(value); m != nil {
		return monthDayTime(m, now)
	}

	if t, err := time.ParseInLocation("2006/1/2 15:04:05", value, JST); err == nil {
		return t, nil
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		return serialTime(serial)
	}

	if t, err := time.ParseInLocation("2006/1/2", value, JST); err == nil {
		return t, nil
	}

	return time.Time{}, ErrUnparsableDate
}

func monthDayTime(m []string, now time.Time) (time.Time, error) {
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, ErrUnparsableDate
	}

	t := time.Date(now.In(JST).Year(), time.Month(month), day, hour, minute, 0, 0, JST)
	// time.Date normalizes impossible dates (Feb 30 becomes Mar 2); reject
	// instead of silently shifting.
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, ErrUnparsableDate
	}
	return t, nil
}

func serialTime(serial float64) (time.Time, error) {
	// The negated comparison also rejects NaN.
	if !(serial >= 1 && serial <= maxSerialDays) {
		return time.Time{}, ErrUnparsableDate
	}
	days := int(serial)
	frac := serial - float64(days)
	seconds := int(frac*86400 + 0.5)
	return serialEpoch.AddDate(0, 0, days).Add(time.Duration(seconds) * time.Second), nil
}
