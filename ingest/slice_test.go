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

package ingest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/colpages/csvingest/encio"
	"github.com/colpages/csvingest/npypage"
	"github.com/colpages/csvingest/typeinfer"
)

func runPlan(t *testing.T, data string, guess bool) (*Plan, string) {
	t.Helper()
	p := writeTemp(t, "in.csv", data)
	opt := planOpts(p, 10)
	opt.GuessDtypes = guess
	plan, err := PlanTasks(opt)
	if err != nil {
		t.Fatalf("PlanTasks: %v", err)
	}
	for _, task := range plan.Tasks {
		if err := Process(task); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	return plan, p
}

func readPage(t *testing.T, path string) (descr string, shape int, body []byte) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte{0x93, 'N', 'U', 'M', 'P', 'Y', 1, 0}) {
		t.Fatalf("%s: bad magic", path)
	}
	hlen := binary.LittleEndian.Uint16(b[8:10])
	header := string(b[10 : 10+hlen])
	body = b[10+hlen:]
	// extract descr and shape crudely; good enough for test assertions.
	descrStart := bytesIndex(header, "'descr': '") + len("'descr': '")
	descrEnd := indexFrom(header, descrStart, '\'')
	descr = header[descrStart:descrEnd]
	shapeStart := bytesIndex(header, "(") + 1
	shapeEnd := indexFrom(header, shapeStart, ',')
	shape = atoiOrFatal(t, header[shapeStart:shapeEnd])
	return descr, shape, body
}

func bytesIndex(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func indexFrom(s string, start int, c byte) int {
	for i := start; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return len(s)
}

func atoiOrFatal(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("not a number: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func TestScenarioS1AllInt(t *testing.T) {
	plan, _ := runPlan(t, "A,B\n1,2\n3,4\n5,6\n", true)
	for _, col := range []struct {
		name string
		want []int64
	}{
		{"A", []int64{1, 3, 5}},
		{"B", []int64{2, 4, 6}},
	} {
		pages := plan.Pages[col.name]
		if len(pages) != 1 {
			t.Fatalf("%s: pages = %d", col.name, len(pages))
		}
		descr, shape, body := readPage(t, pages[0])
		if descr != "<i8" {
			t.Fatalf("%s: descr = %q, want <i8", col.name, descr)
		}
		if shape != 3 {
			t.Fatalf("%s: shape = %d, want 3", col.name, shape)
		}
		for i, want := range col.want {
			got := int64(binary.LittleEndian.Uint64(body[i*8 : i*8+8]))
			if got != want {
				t.Fatalf("%s[%d] = %d, want %d", col.name, i, got, want)
			}
		}
	}
}

func TestScenarioS2MixedIntString(t *testing.T) {
	plan, _ := runPlan(t, "A,B\n1,x\n2,y\n3,z\n", true)
	descrA, _, bodyA := readPage(t, plan.Pages["A"][0])
	if descrA != "<i8" {
		t.Fatalf("A descr = %q", descrA)
	}
	for i, want := range []int64{1, 2, 3} {
		got := int64(binary.LittleEndian.Uint64(bodyA[i*8 : i*8+8]))
		if got != want {
			t.Fatalf("A[%d] = %d, want %d", i, got, want)
		}
	}
	descrB, _, bodyB := readPage(t, plan.Pages["B"][0])
	if descrB != "<U1" {
		t.Fatalf("B descr = %q, want <U1", descrB)
	}
	want := []byte{0x78, 0, 0, 0, 0x79, 0, 0, 0, 0x7A, 0, 0, 0}
	if !bytes.Equal(bodyB, want) {
		t.Fatalf("B body = % x, want % x", bodyB, want)
	}
}

func TestScenarioS3IntFoldsToFloat(t *testing.T) {
	plan, _ := runPlan(t, "A\n1\n2.5\n3\n", true)
	descr, shape, body := readPage(t, plan.Pages["A"][0])
	if descr != "<f8" {
		t.Fatalf("descr = %q, want <f8", descr)
	}
	if shape != 3 {
		t.Fatalf("shape = %d, want 3", shape)
	}
	want := []float64{1.0, 2.5, 3.0}
	for i, w := range want {
		bits := binary.LittleEndian.Uint64(body[i*8 : i*8+8])
		got := math.Float64frombits(bits)
		if got != w {
			t.Fatalf("A[%d] = %v, want %v", i, got, w)
		}
	}
}

func TestScenarioS4ObjectColumn(t *testing.T) {
	plan, _ := runPlan(t, "A\n1\ntrue\n\n", true)
	descr, shape, body := readPage(t, plan.Pages["A"][0])
	if descr != "|O" {
		t.Fatalf("descr = %q, want |O", descr)
	}
	if shape != 3 {
		t.Fatalf("shape = %d, want 3", shape)
	}
	if body[len(body)-1] != '.' { // STOP opcode
		t.Fatalf("object stream does not end with STOP")
	}
	if !bytes.Contains(body, []byte("numpy.core.multiarray")) {
		t.Fatalf("expected the numpy _reconstruct prelude in the object stream")
	}
}

func TestNotGuessingAlwaysUnicode(t *testing.T) {
	plan, _ := runPlan(t, "A,B\n1,2\n3,4\n", false)
	descrA, _, _ := readPage(t, plan.Pages["A"][0])
	if descrA != "<U1" {
		t.Fatalf("A descr = %q, want <U1 (no dtype guessing)", descrA)
	}
}

// utf16le renders s as UTF-16 bytes in the byte order the reader
// treats as little-endian, preceded by the corresponding BOM.
func utf16le(s string) []byte {
	out := []byte{0xFE, 0xFF}
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

// TestEncodingIndependence checks that the same logical CSV encoded as
// UTF-8 and UTF-16 produces byte-identical page bodies.
func TestEncodingIndependence(t *testing.T) {
	const logical = "A,B\n1,x\n2,y\n3,z\n"

	p8 := writeTemp(t, "u8.csv", logical)
	opt8 := planOpts(p8, 10)
	plan8, err := PlanTasks(opt8)
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range plan8.Tasks {
		if err := Process(task); err != nil {
			t.Fatal(err)
		}
	}

	dir := t.TempDir()
	p16 := filepath.Join(dir, "u16.csv")
	if err := os.WriteFile(p16, utf16le(logical), 0644); err != nil {
		t.Fatal(err)
	}
	opt16 := planOpts(p16, 10)
	opt16.Kind = encio.UTF16
	plan16, err := PlanTasks(opt16)
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range plan16.Tasks {
		if err := Process(task); err != nil {
			t.Fatal(err)
		}
	}

	for _, col := range []string{"A", "B"} {
		d8, n8, b8 := readPage(t, plan8.Pages[col][0])
		d16, n16, b16 := readPage(t, plan16.Pages[col][0])
		if d8 != d16 || n8 != n16 {
			t.Fatalf("%s: headers differ: %q/%d vs %q/%d", col, d8, n8, d16, n16)
		}
		if !bytes.Equal(b8, b16) {
			t.Fatalf("%s: bodies differ between encodings", col)
		}
	}
}

// TestQuotedHeaderUTF16 mirrors the quoted-field scenario over a
// UTF-16 source: a quoted header cell containing the delimiter stays
// one column, and the data row still splits into two fields.
func TestQuotedHeaderUTF16(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "q.csv")
	if err := os.WriteFile(p, utf16le("\"a,b\",\"c\"\nx,y\n"), 0644); err != nil {
		t.Fatal(err)
	}
	opt := planOpts(p, 10)
	opt.Kind = encio.UTF16
	plan, err := PlanTasks(opt)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Columns) != 2 || plan.Columns[0] != "a,b" || plan.Columns[1] != "c" {
		t.Fatalf("columns = %v", plan.Columns)
	}
	for _, task := range plan.Tasks {
		if err := Process(task); err != nil {
			t.Fatal(err)
		}
	}
	descr, shape, body := readPage(t, plan.Pages["a,b"][0])
	if descr != "<U1" || shape != 1 {
		t.Fatalf("first column page = %q shape %d", descr, shape)
	}
	if !bytes.Equal(body, []byte{'x', 0, 0, 0}) {
		t.Fatalf("first column body = % x", body)
	}
}

// TestWriteValueIntegrityError exercises the pass-2 "type error" path
// directly: a page type chosen for a column whose fixed-stride
// re-parse fails is a fatal integrity error, never a silent fallback.
func TestWriteValueIntegrityError(t *testing.T) {
	p := writeTemp(t, "bad.npy", "")
	f, buf, err := npypage.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := &pageWriter{f: &npypageFile{f: f, buf: buf, width: 0}}
	err = w.writeValue("notanumber", typeinfer.INT64, nil, typeinfer.BoolSynonyms{}, 0)
	if err == nil {
		t.Fatal("expected an integrity error")
	}
	var ie *ErrTypeIntegrity
	if !errors.As(err, &ie) {
		t.Fatalf("expected *ErrTypeIntegrity, got %T: %v", err, err)
	}
}
