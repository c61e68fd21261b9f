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

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUTF8BOM(t *testing.T) {
	p := writeTemp(t, "a.csv", append(utf8BOM[:], []byte("A,B\n1,2\n")...))
	h, enc, err := Open(p, UTF8)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	if enc.Kind != UTF8 {
		t.Fatalf("kind = %v", enc.Kind)
	}
	if h.Pos() != 3 {
		t.Fatalf("pos = %d, want 3 (past BOM)", h.Pos())
	}
	found, line, _, err := h.ReadLine()
	if err != nil || !found {
		t.Fatalf("ReadLine: %v %v", found, err)
	}
	if line != "A,B" {
		t.Fatalf("line = %q", line)
	}
}

func TestUTF8NoBOM(t *testing.T) {
	p := writeTemp(t, "a.csv", []byte("A,B\n1,2\n"))
	h, _, err := Open(p, UTF8)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	if h.Pos() != 0 {
		t.Fatalf("pos = %d, want 0", h.Pos())
	}
}

func TestUTF16LE(t *testing.T) {
	var buf []byte
	buf = append(buf, utf16BOMLE[:]...)
	for _, c := range "A,B\n1,2\n" {
		buf = append(buf, byte(c), 0)
	}
	p := writeTemp(t, "a.csv", buf)
	h, enc, err := Open(p, UTF16)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	if !enc.LittleEndian {
		t.Fatal("expected little-endian")
	}
	found, line, post, err := h.ReadLine()
	if err != nil || !found {
		t.Fatalf("ReadLine: %v %v", found, err)
	}
	if line != "A,B" {
		t.Fatalf("line = %q", line)
	}
	found2, line2, _, err := h.ReadLine()
	if err != nil || !found2 || line2 != "1,2" {
		t.Fatalf("second line: %v %q %v", found2, line2, err)
	}
	if post == 0 {
		t.Fatal("post offset should advance")
	}
}

func TestUTF16BadBOM(t *testing.T) {
	p := writeTemp(t, "a.csv", []byte("AB"))
	_, _, err := Open(p, UTF16)
	if err == nil {
		t.Fatal("expected error for bad BOM")
	}
}

func TestUTF16OddSize(t *testing.T) {
	buf := append(utf16BOMLE[:], 'A')
	p := writeTemp(t, "a.csv", buf)
	_, _, err := Open(p, UTF16)
	if err != ErrOddSize {
		t.Fatalf("err = %v, want ErrOddSize", err)
	}
}

func TestFindNewlines(t *testing.T) {
	p := writeTemp(t, "a.csv", []byte("A,B\n1,2\n3,4\n5,6\n"))
	offsets, count, _, err := FindNewlines(p, UTF8)
	if err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}
	if len(offsets) != count+1 {
		t.Fatalf("len(offsets) = %d", len(offsets))
	}
	if offsets[0] != 0 {
		t.Fatalf("offsets[0] = %d", offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			t.Fatalf("offsets not monotonically increasing at %d", i)
		}
	}
}

func TestFindNewlinesEmpty(t *testing.T) {
	p := writeTemp(t, "a.csv", []byte{})
	offsets, count, _, err := FindNewlines(p, UTF8)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || len(offsets) != 1 || offsets[0] != 0 {
		t.Fatalf("empty file: offsets=%v count=%d", offsets, count)
	}
}

func TestOpenAtSeeksPastBOM(t *testing.T) {
	p := writeTemp(t, "a.csv", append(utf8BOM[:], []byte("A,B\n1,2\n3,4\n")...))
	offsets, _, enc, err := FindNewlines(p, UTF8)
	if err != nil {
		t.Fatal(err)
	}
	h, err := OpenAt(p, enc, offsets[2])
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	found, line, _, err := h.ReadLine()
	if err != nil || !found || line != "3,4" {
		t.Fatalf("got %q found=%v err=%v", line, found, err)
	}
}
