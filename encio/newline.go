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

package encio

// FindNewlines scans path once and returns the byte offset of every
// logical record boundary: offsets[0] is the first byte after any
// byte-order mark, offsets[i] for i>0 is the start of record i, and
// the final entry is the end-of-file offset. count is the number of
// complete records (len(offsets) == count+1). A file with nothing
// after its BOM (if any) returns count == 0; a header-only file
// returns count == 1.
func FindNewlines(path string, kind Kind) (offsets []uint64, count int, enc Encoding, err error) {
	h, enc, err := Open(path, kind)
	if err != nil {
		return nil, 0, Encoding{}, err
	}
	defer h.Close()

	offsets = append(offsets, h.Pos())
	for {
		found, _, post, err := h.ReadLine()
		if err != nil {
			return nil, 0, enc, err
		}
		if !found {
			return offsets, count, enc, nil
		}
		offsets = append(offsets, post)
		count++
	}
}
