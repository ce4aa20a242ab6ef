/*
Copyright © 2026 the esgf authors.
This file is part of esgf.

esgf is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

esgf is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with esgf.  If not, see <http://www.gnu.org/licenses/>.
*/

package dataset

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrCalendar is returned for CF calendars other than the standard ones.
var ErrCalendar = errors.New("dataset: unsupported calendar")

var timeUnits = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second, "sec": time.Second, "secs": time.Second, "s": time.Second,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute, "mins": time.Minute,
	"hour": time.Hour, "hours": time.Hour, "hr": time.Hour, "hrs": time.Hour, "h": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour, "d": 24 * time.Hour,
}

var epochLayouts = []string{
	"2006-1-2 15:4:5",
	"2006-1-2T15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
	time.RFC3339,
}

// parseTimeUnits parses CF time units such as "days since 1850-01-01".
func parseTimeUnits(units, calendar string) (time.Duration, time.Time, error) {
	switch strings.ToLower(calendar) {
	case "", "standard", "gregorian", "proleptic_gregorian":
	default:
		return 0, time.Time{}, fmt.Errorf("%w: %s", ErrCalendar, calendar)
	}
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("dataset: %q are not time units", units)
	}
	step, ok := timeUnits[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("dataset: unknown time unit %q", parts[0])
	}
	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(strings.TrimSuffix(ref, " UTC"), "Z")
	if i := strings.LastIndex(ref, "."); i > strings.LastIndex(ref, ":") && strings.Contains(ref, ":") {
		ref = ref[:i] // fractional seconds
	}
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, ref); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("dataset: cannot parse reference time %q", parts[1])
}

// EncodeTime converts t to a number in the given CF units and calendar.
func EncodeTime(t time.Time, units, calendar string) (float64, error) {
	step, epoch, err := parseTimeUnits(units, calendar)
	if err != nil {
		return 0, err
	}
	secs := float64(t.Unix()-epoch.Unix()) + float64(t.Nanosecond()-epoch.Nanosecond())/1e9
	return secs / step.Seconds(), nil
}

// DecodeTime converts a number in the given CF units and calendar to a time.
func DecodeTime(v float64, units, calendar string) (time.Time, error) {
	step, epoch, err := parseTimeUnits(units, calendar)
	if err != nil {
		return time.Time{}, err
	}
	secs := v * step.Seconds()
	whole := math.Floor(secs)
	return time.Unix(epoch.Unix()+int64(whole), int64(math.Round((secs-whole)*1e9))).UTC(), nil
}
