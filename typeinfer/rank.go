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

import "sort"

type rankEntry struct {
	typ   DataType
	count int
}

// RankCounter is a per-column ordered array of (DataType, count)
// pairs, fixed at numDataTypes slots and re-ordered by insertion sort
// on every update; a map is unnecessary since the type count is tiny
// and bounded at compile time.
type RankCounter struct {
	entries [numDataTypes]rankEntry
	bools   BoolSynonyms
}

// NewRankCounter returns a fresh counter seeded in canonical trial
// precedence order (NONE, BOOL, DATETIME, DATETIME_US, DATE, DATE_US,
// TIME, INT, FLOAT, STRING).
func NewRankCounter(bools BoolSynonyms) *RankCounter {
	r := &RankCounter{bools: bools}
	for i := DataType(0); i < numDataTypes; i++ {
		r.entries[i] = rankEntry{typ: i, count: 0}
	}
	return r
}

// Update walks the counter in its current order, attempting ParseAs
// for each entry's type; on the first success it increments that
// entry's count, re-sorts by count descending via insertion sort, and
// returns the matched type along with the parsed Value.
func (r *RankCounter) Update(s string) (DataType, Value) {
	for i := range r.entries {
		dt := r.entries[i].typ
		v, ok := ParseAs(dt, s, r.bools)
		if !ok {
			continue
		}
		r.entries[i].count++
		r.bubbleUp(i)
		return dt, v
	}
	// STRING always succeeds, so this is unreachable in practice, but
	// guard against a misconfigured entries array.
	return STRING, Value{Type: STRING, Str: s}
}

// bubbleUp moves entries[i] left while its count exceeds its
// predecessor's, the insertion-sort step triggered by every Update.
func (r *RankCounter) bubbleUp(i int) {
	for i > 0 && r.entries[i-1].count < r.entries[i].count {
		r.entries[i-1], r.entries[i] = r.entries[i], r.entries[i-1]
		i--
	}
}

// stringsLast returns a copy of the counter's entries sorted so that
// STRING is demoted below any other type with a nonzero count,
// otherwise preserving the existing count-descending order.
func (r *RankCounter) stringsLast() []rankEntry {
	out := make([]rankEntry, len(r.entries))
	copy(out, r.entries[:])
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aDemoted := a.typ == STRING && b.count > 0 && b.typ != STRING
		bDemoted := b.typ == STRING && a.count > 0 && a.typ != STRING
		if aDemoted {
			return false
		}
		if bDemoted {
			return true
		}
		return a.count > b.count
	})
	return out
}

// FinalPageType applies the end-of-pass-1 selection algorithm: a
// strings-last re-sort, then folding rules (INT absorbed into FLOAT,
// heterogeneous mixtures to OBJECT, a lone STRING vote to UNICODE, a
// single typed vote to its fixed-stride PageType, anything else to
// OBJECT). It also applies the strings-last re-sort to the receiver in
// place, so pass 2's OBJECT-page attempt order tries typed parses
// before falling back to STRING.
func (r *RankCounter) FinalPageType() PageType {
	sorted := r.stringsLast()
	for i, e := range sorted {
		r.entries[i] = e
	}

	var nonzero []rankEntry
	for _, e := range sorted {
		if e.count > 0 {
			nonzero = append(nonzero, e)
		}
	}
	if len(nonzero) == 0 {
		return UNSET
	}
	if len(nonzero) == 1 {
		switch nonzero[0].typ {
		case STRING:
			return UNICODE
		case INT:
			return INT64
		case FLOAT:
			return FLOAT64
		case BOOL:
			return BOOLPAGE
		default:
			return OBJECT
		}
	}

	allIntFloat := true
	floatCount := 0
	for _, e := range nonzero {
		if e.typ == FLOAT {
			floatCount = e.count
		}
		if e.typ != INT && e.typ != FLOAT {
			allIntFloat = false
		}
	}
	if allIntFloat && floatCount > 0 {
		return FLOAT64
	}
	return OBJECT
}

// Types returns the counter's current type order, used by pass 2 to
// re-try typed parses for an OBJECT column's candidates in the same
// priority order pass 1 settled on.
func (r *RankCounter) Types() []DataType {
	out := make([]DataType, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.typ
	}
	return out
}
