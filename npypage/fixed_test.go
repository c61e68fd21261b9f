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
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestWriteInt64RoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 42}
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for _, n := range cases {
		if err := WriteInt64(w, n); err != nil {
			t.Fatalf("WriteInt64(%d): %v", n, err)
		}
	}
	w.Flush()
	body := buf.Bytes()
	if len(body) != len(cases)*8 {
		t.Fatalf("body length = %d, want %d", len(body), len(cases)*8)
	}
	for i, want := range cases {
		got := int64(binary.LittleEndian.Uint64(body[i*8 : i*8+8]))
		if got != want {
			t.Errorf("row %d = %d, want %d", i, got, want)
		}
	}
}

func TestWriteFloat64RoundTrip(t *testing.T) {
	cases := []float64{0, 1.5, -2.25, 3.0}
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for _, f := range cases {
		if err := WriteFloat64(w, f); err != nil {
			t.Fatalf("WriteFloat64(%v): %v", f, err)
		}
	}
	w.Flush()
	body := buf.Bytes()
	for i, want := range cases {
		bits := binary.LittleEndian.Uint64(body[i*8 : i*8+8])
		got := math.Float64frombits(bits)
		if got != want {
			t.Errorf("row %d = %v, want %v", i, got, want)
		}
	}
}

func TestWriteBool(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	WriteBool(w, true)
	WriteBool(w, false)
	w.Flush()
	if got := buf.Bytes(); !bytes.Equal(got, []byte{0x01, 0x00}) {
		t.Fatalf("got % x", got)
	}
}

func TestWriteUnicodePadsToWidth(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteUnicode(w, "xyz", 5); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	body := buf.Bytes()
	if len(body) != 5*4 {
		t.Fatalf("body length = %d, want %d", len(body), 20)
	}
	want := []rune("xyz")
	for i, r := range want {
		got := binary.LittleEndian.Uint32(body[i*4 : i*4+4])
		if rune(got) != r {
			t.Errorf("codepoint %d = %d, want %d", i, got, r)
		}
	}
	for i := len(want); i < 5; i++ {
		got := binary.LittleEndian.Uint32(body[i*4 : i*4+4])
		if got != 0 {
			t.Errorf("padding codepoint %d = %d, want 0", i, got)
		}
	}
}

func TestWriteUnicodeTruncatesAtWidth(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteUnicode(w, "hello", 3); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	if got := buf.Len(); got != 3*4 {
		t.Fatalf("body length = %d, want %d", got, 12)
	}
}
