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
)

// dateSep describes one separator variant tried for a date format
// family. dotted marks the "!" convention entries: the candidate must
// contain '.' and is matched after replacing every '.' with '-'.
type dateSep struct {
	sep    byte
	dotted bool
}

// isoDateSeps is the closed, ordered list of separators tried for
// DATE (year-month-day) candidates.
var isoDateSeps = []dateSep{
	{sep: '-'},
	{sep: '/'},
	{sep: ' '},
	{sep: '-', dotted: true},
}

// usDateSeps is the closed, ordered list of separators tried for
// DATE_US (month-day-year) candidates.
var usDateSeps = []dateSep{
	{sep: '/'},
	{sep: '-'},
	{sep: ' '},
	{sep: '-', dotted: true},
}

func withSeparator(s string, d dateSep) (string, bool) {
	if d.dotted {
		if !strings.ContainsRune(s, '.') {
			return "", false
		}
		return strings.ReplaceAll(s, ".", "-"), true
	}
	if strings.ContainsRune(s, '.') {
		return "", false
	}
	return s, true
}

// parseISODate tries "YYYY<sep>MM<sep>DD" against each separator in
// isoDateSeps.
func parseISODate(s string) (year, month, day int, ok bool) {
	for _, d := range isoDateSeps {
		cand, match := withSeparator(s, d)
		if !match {
			continue
		}
		parts := strings.Split(cand, string(d.sep))
		if len(parts) != 3 {
			continue
		}
		y, err1 := strconv.Atoi(parts[0])
		mo, err2 := strconv.Atoi(parts[1])
		da, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if len(parts[0]) != 4 || len(parts[1]) > 2 || len(parts[2]) > 2 {
			continue
		}
		if mo < 1 || mo > 12 || da < 1 || da > 31 {
			continue
		}
		return y, mo, da, true
	}
	return 0, 0, 0, false
}

// parseUSDate tries "MM<sep>DD<sep>YYYY" against each separator in
// usDateSeps.
func parseUSDate(s string) (year, month, day int, ok bool) {
	for _, d := range usDateSeps {
		cand, match := withSeparator(s, d)
		if !match {
			continue
		}
		parts := strings.Split(cand, string(d.sep))
		if len(parts) != 3 {
			continue
		}
		mo, err1 := strconv.Atoi(parts[0])
		da, err2 := strconv.Atoi(parts[1])
		y, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if len(parts[2]) != 4 || len(parts[0]) > 2 || len(parts[1]) > 2 {
			continue
		}
		if mo < 1 || mo > 12 || da < 1 || da > 31 {
			continue
		}
		return y, mo, da, true
	}
	return 0, 0, 0, false
}
