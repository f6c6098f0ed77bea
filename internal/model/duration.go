package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is either infinite or a finite number of milliseconds.
// The zero value is a finite duration of zero length.
type Duration struct {
	Millis   uint64 `yaml:"millis,omitempty" json:"millis,omitempty"`
	Infinite bool   `yaml:"infinite,omitempty" json:"infinite,omitempty"`
}

// InfiniteDuration never elapses.
var InfiniteDuration = Duration{Infinite: true}

// Month is the default snapshot lifetime.
var Month = Limited(30 * 24 * time.Hour)

// Limited returns a finite duration, truncated to milliseconds.
// Negative durations are clamped to zero.
func Limited(d time.Duration) Duration {
	if d < 0 {
		d = 0
	}
	return Duration{Millis: uint64(d / time.Millisecond)}
}

// LimitedMillis returns a finite duration of ms milliseconds.
func LimitedMillis(ms uint64) Duration {
	return Duration{Millis: ms}
}

func (d Duration) IsInfinite() bool { return d.Infinite }

// AsTime returns the duration as a time.Duration; ok is false when the
// duration is infinite.
func (d Duration) AsTime() (time.Duration, bool) {
	if d.Infinite {
		return 0, false
	}
	return time.Duration(d.Millis) * time.Millisecond, true
}

// AddTo returns t+d. ok is false when d is infinite.
func (d Duration) AddTo(t time.Time) (time.Time, bool) {
	td, ok := d.AsTime()
	if !ok {
		return time.Time{}, false
	}
	return t.Add(td), true
}

func (d Duration) String() string {
	if d.Infinite {
		return "infinite"
	}
	ms := d.Millis
	if ms == 0 {
		return "0s"
	}
	var b strings.Builder
	const day = 24 * 60 * 60 * 1000
	if days := ms / day; days > 0 {
		b.WriteString(strconv.FormatUint(days, 10))
		b.WriteString("d")
		ms %= day
	}
	if ms > 0 {
		b.WriteString((time.Duration(ms) * time.Millisecond).String())
	}
	return b.String()
}

// ParseDuration parses "infinite" (also "inf", "never") or a duration
// made of Go duration units plus "d" (24h) and "w" (7d), such as "30d",
// "3d12h" or "1w2d".
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return Duration{}, fmt.Errorf("empty duration")
	case "infinite", "inf", "never":
		return InfiniteDuration, nil
	}

	var total time.Duration
	rest := s
scan:
	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			break
		}
		var unit time.Duration
		switch rest[i] {
		case 'd':
			unit = 24 * time.Hour
		case 'w':
			unit = 7 * 24 * time.Hour
		default:
			// Hand the remainder to time.ParseDuration.
			break scan
		}
		n, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += time.Duration(n) * unit
		rest = rest[i+1:]
	}

	if rest != "" {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += d
	}
	if total < 0 {
		return Duration{}, fmt.Errorf("invalid duration %q: negative", s)
	}
	return Limited(total), nil
}
