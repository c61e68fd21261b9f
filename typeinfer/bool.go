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

import "strings"

// BoolSynonyms configures additional case-insensitive spellings for
// true/false beyond the required "true"/"false". The zero value
// recognizes only "true"/"false".
type BoolSynonyms struct {
	True  []string
	False []string
}

func (b BoolSynonyms) parse(s string) (value bool, ok bool) {
	lower := strings.ToLower(s)
	if lower == "true" {
		return true, true
	}
	if lower == "false" {
		return false, true
	}
	for _, t := range b.True {
		if strings.EqualFold(s, t) {
			return true, true
		}
	}
	for _, f := range b.False {
		if strings.EqualFold(s, f) {
			return false, true
		}
	}
	return false, false
}
