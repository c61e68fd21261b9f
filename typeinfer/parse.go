// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package typeinfer

import (
	"strconv"
	"strings"

	"github.com/colpages/csvingest/date"
)

// Value is the outcome of successfully parsing a field as some
// DataType: exactly one of the typed fields is meaningful, selected by
// Type. Pass 2 of the slice processor reuses Value instead of
// re-deriving it from scratch for every OBJECT-page candidate.
//
// Time holds the wall-clock value as written (never shifted to UTC):
// a TIME or DATETIME candidate with a trailing offset keeps its
// literal hour/minute/second in Time and records the offset
// separately in OffsetSeconds, since Python's datetime.time/datetime
// keep wall-clock fields alongside a tzinfo rather than normalizing to
// UTC.
type Value struct {
	Type          DataType
	Int           int64
	Float         float64
	Bool          bool
	Time          date.Time
	HasOffset     bool
	OffsetSeconds int
	Str           string
}

// ParseAs attempts to interpret s as dt, returning the parsed Value on
// success. STRING always succeeds. bools configures optional
// synonym spellings for BOOL beyond "true"/"false".
func ParseAs(dt DataType, s string, bools BoolSynonyms) (Value, bool) {
	switch dt {
	case NONE:
		if IsNull(s) {
			return Value{Type: NONE}, true
		}
		return Value{}, false

	case BOOL:
		if b, ok := bools.parse(s); ok {
			return Value{Type: BOOL, Bool: b}, true
		}
		return Value{}, false

	case INT:
		if n, ok := parseStrictInt(s); ok {
			return Value{Type: INT, Int: n}, true
		}
		return Value{}, false

	case FLOAT:
		if f, ok := parseStrictFloat(s); ok {
			return Value{Type: FLOAT, Float: f}, true
		}
		return Value{}, false

	case DATE:
		if y, mo, d, ok := parseISODate(s); ok {
			return Value{Type: DATE, Time: date.Date(y, mo, d, 0, 0, 0, 0)}, true
		}
		return Value{}, false

	case DATEUS:
		if y, mo, d, ok := parseUSDate(s); ok {
			return Value{Type: DATEUS, Time: date.Date(y, mo, d, 0, 0, 0, 0)}, true
		}
		return Value{}, false

	case TIME:
		if t, ok := parseClock(s); ok {
			v := Value{
				Type:          TIME,
				Time:          date.Date(0, 1, 1, t.hour, t.min, t.sec, t.nsec),
				HasOffset:     t.offsetSet,
				OffsetSeconds: t.offsetSeconds,
			}
			return v, true
		}
		return Value{}, false

	case DATETIME:
		if v, ok := parseDateAndTime(s, parseISODate); ok {
			v.Type = DATETIME
			return v, true
		}
		return Value{}, false

	case DATETIMEUS:
		if v, ok := parseDateAndTime(s, parseUSDate); ok {
			v.Type = DATETIMEUS
			return v, true
		}
		return Value{}, false

	case STRING:
		return Value{Type: STRING, Str: s}, true
	}
	return Value{}, false
}

// parseDateAndTime splits s on the first 'T' or ' ' separator and
// requires both halves to parse, per "DATETIME = DATE + separator +
// TIME".
func parseDateAndTime(s string, parseDate func(string) (int, int, int, bool)) (Value, bool) {
	sepIdx := strings.IndexAny(s, "T ")
	if sepIdx <= 0 || sepIdx >= len(s)-1 {
		return Value{}, false
	}
	datePart, timePart := s[:sepIdx], s[sepIdx+1:]
	y, mo, d, ok := parseDate(datePart)
	if !ok {
		return Value{}, false
	}
	t, ok := parseClock(timePart)
	if !ok {
		return Value{}, false
	}
	return Value{
		Time:          date.Date(y, mo, d, t.hour, t.min, t.sec, t.nsec),
		HasOffset:     t.offsetSet,
		OffsetSeconds: t.offsetSeconds,
	}, true
}

func parseStrictInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i = 1
	}
	if i == len(s) {
		return 0, false
	}
	for k := i; k < len(s); k++ {
		if s[k] < '0' || s[k] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseStrictFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	lower := strings.ToLower(strings.TrimLeft(s, "+-"))
	if lower == "inf" || lower == "infinity" || lower == "nan" {
		return 0, false
	}
	for _, c := range s {
		if c == ' ' || c == '\t' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
