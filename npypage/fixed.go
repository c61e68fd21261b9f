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

package npypage

import (
	"bufio"
	"encoding/binary"
	"math"
)

// WriteUnicode writes one UNICODE row: each code point as a
// little-endian u32, right-padded with zero u32s to width.
func WriteUnicode(w *bufio.Writer, s string, width int) error {
	n := 0
	var buf [4]byte
	for _, r := range s {
		if n >= width {
			break
		}
		binary.LittleEndian.PutUint32(buf[:], uint32(r))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		n++
	}
	for ; n < width; n++ {
		if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
			return err
		}
	}
	return nil
}

// WriteInt64 writes one INT64 row: native-endian 8 bytes. (NumPy's
// '<i8' descriptor is little-endian; this pipeline only targets
// little-endian hosts, consistent with the header's own '<' byte
// order markers.)
func WriteInt64(w *bufio.Writer, n int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	_, err := w.Write(buf[:])
	return err
}

// WriteFloat64 writes one FLOAT64 row: native-endian 8 bytes.
func WriteFloat64(w *bufio.Writer, f float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	_, err := w.Write(buf[:])
	return err
}

// WriteBool writes one BOOL row: 0x01 for a case-insensitive "true",
// else 0x00.
func WriteBool(w *bufio.Writer, b bool) error {
	if b {
		return w.WriteByte(0x01)
	}
	return w.WriteByte(0x00)
}
