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

package date

import (
	"strings"
	"time"
)

// layouts tried in order by parse; the first to
// succeed wins. A leading/trailing space is trimmed
// before any layout is attempted, and a single space
// separating the date and time portions is normalized
// to 'T' so that "2019-10-12 07:20:50.52" parses the
// same as "2019-10-12T07:20:50.52".
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parse(data []byte) (year, month, day, hour, min, sec, ns int, ok bool) {
	s := strings.TrimSpace(string(data))
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i] + "T" + s[i+1:]
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			y, mo, d := t.Date()
			h, mi, se := t.Clock()
			return y, int(mo), d, h, mi, se, t.Nanosecond(), true
		}
	}
	return 0, 0, 0, 0, 0, 0, 0, false
}
