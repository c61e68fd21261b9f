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
	"testing"

	"github.com/colpages/csvingest/date"
)

func TestObjectWriterEmptyPage(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	o := NewObjectWriter(w, 0)
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	if err := o.Finish(); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	body := buf.Bytes()
	if body[0] != opProto || body[1] != 3 {
		t.Fatalf("expected PROTO 3 prelude, got % x", body[:2])
	}
	if body[len(body)-1] != opStop {
		t.Fatalf("expected STOP as final opcode, got %x", body[len(body)-1])
	}
	// An empty page has no row MARK and no APPENDS: the memoized
	// EMPTY_LIST (memo index 9) is followed directly by TUPLE BUILD
	// STOP. (The prelude's GLOBAL names contain 'e' as text, so the
	// APPENDS opcode byte is checked by position, not by counting.)
	if !bytes.HasSuffix(body, []byte{opEmptyList, opBinput, 9, opTuple, opBuild, opStop}) {
		t.Fatalf("empty page should not contain APPENDS")
	}
}

func TestObjectWriterMixedRows(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	o := NewObjectWriter(w, 3)
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	o.PutInt(1)
	o.PutBool(true)
	o.PutNone()
	if err := o.Finish(); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	body := buf.Bytes()

	if body[len(body)-1] != opStop {
		t.Fatalf("expected STOP as final opcode")
	}
	// After the row MARK, BININT1 1 (the int, memoized at index 10),
	// NEWTRUE (the bool) and NONE (the null) appear in that order,
	// followed by exactly one APPENDS and the TUPLE BUILD STOP suffix.
	// (The prelude's GLOBAL names contain 'e' as text, so the APPENDS
	// opcode byte is checked by position, not by counting.)
	if !bytes.HasSuffix(body, []byte{opMark, opBinint1, 0x01, opBinput, 10, opNewtrue, opNone, opAppends, opTuple, opBuild, opStop}) {
		t.Fatalf("expected exactly one APPENDS for a non-empty page")
	}
	if !bytes.Contains(body, []byte{opBinint1, 0x01}) {
		t.Fatalf("expected BININT1 0x01 for PutInt(1)")
	}
}

func TestObjectWriterDateAndDatetime(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	o := NewObjectWriter(w, 2)
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	o.PutDate(date.Date(2024, 3, 15, 0, 0, 0, 0))
	o.PutDatetime(date.Date(2024, 3, 15, 12, 30, 0, 500_000_000), true, -5*3600)
	if err := o.Finish(); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	body := buf.Bytes()
	if !bytes.Contains(body, []byte("datetime\ndate\n")) {
		t.Fatalf("expected GLOBAL datetime.date in object stream")
	}
	if !bytes.Contains(body, []byte("datetime\ndatetime\n")) {
		t.Fatalf("expected GLOBAL datetime.datetime in object stream")
	}
	if !bytes.Contains(body, []byte("datetime\ntimezone\n")) {
		t.Fatalf("expected GLOBAL datetime.timezone for the offset-aware datetime")
	}
}

func TestObjectWriterFinishBeforeStartFails(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	o := NewObjectWriter(w, 1)
	if err := o.Finish(); err == nil {
		t.Fatal("expected error calling Finish before Start")
	}
}
