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
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/colpages/csvingest/csvfsm"
	"github.com/colpages/csvingest/encio"
	"github.com/colpages/csvingest/npypage"
	"github.com/colpages/csvingest/typeinfer"
)

// ErrTypeIntegrity is returned when a value that passed pass-1
// inference fails to re-parse during pass-2 for the page type chosen
// for its column. This is always a bug or a data race on the source
// file between passes, never something to paper over with a silent
// fallback to a looser type.
type ErrTypeIntegrity struct {
	Column int
	Value  string
	Type   typeinfer.PageType
}

func (e *ErrTypeIntegrity) Error() string {
	return fmt.Sprintf("ingest: value %q in column %d failed to re-parse as %s during pass 2", e.Value, e.Column, e.Type)
}

// Process executes one Task: a two-pass read that infers (or, if
// GuessDtypes is false, assumes UNICODE for) each column's page type,
// writes the page headers, then re-reads the slice to materialize
// page bodies. A Task either writes all of its pages fully or
// contributes no pages: on any error after page creation has begun,
// Process removes every page path it owns before returning.
func Process(t Task) error {
	numCols := len(t.PagePaths)
	ranks := make([]*typeinfer.RankCounter, numCols)
	longest := make([]int, numCols)
	if t.GuessDtypes {
		for c := range ranks {
			ranks[c] = typeinfer.NewRankCounter(t.Bools)
		}
	}

	nRows, err := passOne(t, ranks, longest)
	if err != nil {
		return err
	}

	pageTypes := make([]typeinfer.PageType, numCols)
	for c := range pageTypes {
		if !t.GuessDtypes {
			pageTypes[c] = typeinfer.UNICODE
			continue
		}
		pt := ranks[c].FinalPageType()
		if pt == typeinfer.UNSET {
			pt = typeinfer.UNICODE
		}
		pageTypes[c] = pt
	}

	writers := make([]*pageWriter, numCols)
	for c := range writers {
		pw, err := openPage(t.PagePaths[c], pageTypes[c], longest[c], nRows)
		if err != nil {
			closeAll(writers)
			removePages(t.PagePaths)
			return fmt.Errorf("ingest: opening page %s: %w", t.PagePaths[c], err)
		}
		writers[c] = pw
	}

	if err := passTwo(t, nRows, pageTypes, ranks, writers); err != nil {
		closeAll(writers)
		removePages(t.PagePaths)
		return err
	}

	if err := finishAll(writers); err != nil {
		removePages(t.PagePaths)
		return err
	}
	return nil
}

// removePages deletes the Task's own page paths after a failure; the
// planner guarantees no other Task shares them, so this never touches
// another Task's output.
func removePages(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// passOne streams up to t.RowCount records, updating each column's
// rank counter (or longest-string tracker) and returns the number of
// records actually read (fewer than t.RowCount only when the source
// runs out of records first).
func passOne(t Task, ranks []*typeinfer.RankCounter, longest []int) (int, error) {
	h, err := encio.OpenAt(t.SourcePath, t.Encoding, t.RowOffsetBytes)
	if err != nil {
		return 0, err
	}
	defer h.Close()
	tok := csvfsm.New(h, t.Dialect)

	n := 0
	for n < t.RowCount {
		fields, err := tok.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("ingest: pass 1 tokenizing row %d: %w", n, err)
		}
		for c, fi := range t.ImportFields {
			field := fieldAt(fields, fi)
			if t.GuessDtypes {
				dt, _ := ranks[c].Update(field)
				if dt == typeinfer.STRING {
					trackLongest(longest, c, field)
				}
			} else {
				trackLongest(longest, c, field)
			}
		}
		n++
	}
	return n, nil
}

func fieldAt(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func trackLongest(longest []int, c int, s string) {
	n := utf8.RuneCountInString(s)
	if n > longest[c] {
		longest[c] = n
	}
}

// passTwo re-streams exactly nRows records and dispatches each field
// to its column's writer according to the page type chosen after
// pass 1.
func passTwo(t Task, nRows int, pageTypes []typeinfer.PageType, ranks []*typeinfer.RankCounter, writers []*pageWriter) error {
	h, err := encio.OpenAt(t.SourcePath, t.Encoding, t.RowOffsetBytes)
	if err != nil {
		return err
	}
	defer h.Close()
	tok := csvfsm.New(h, t.Dialect)

	for row := 0; row < nRows; row++ {
		fields, err := tok.Next()
		if err != nil {
			return fmt.Errorf("ingest: pass 2 tokenizing row %d: %w", row, err)
		}
		for c, fi := range t.ImportFields {
			field := fieldAt(fields, fi)
			if err := writers[c].writeValue(field, pageTypes[c], ranks[c], t.Bools, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// pageWriter bundles one page's open file handle with whichever
// sub-writer (fixed-stride or pickle object stream) its page type
// needs.
type pageWriter struct {
	f   *npypageFile
	obj *npypage.ObjectWriter
}

func closeAll(writers []*pageWriter) {
	for _, w := range writers {
		if w != nil {
			w.f.close()
		}
	}
}

func finishAll(writers []*pageWriter) error {
	for _, w := range writers {
		if w.obj != nil {
			if err := w.obj.Finish(); err != nil {
				closeAll(writers)
				return err
			}
		}
		if err := w.f.close(); err != nil {
			return err
		}
	}
	return nil
}

func (w *pageWriter) writeValue(field string, pt typeinfer.PageType, rank *typeinfer.RankCounter, bools typeinfer.BoolSynonyms, col int) error {
	switch pt {
	case typeinfer.UNICODE:
		return npypage.WriteUnicode(w.f.buf, field, w.f.width)
	case typeinfer.INT64:
		v, ok := typeinfer.ParseAs(typeinfer.INT, field, bools)
		if !ok {
			return &ErrTypeIntegrity{Column: col, Value: field, Type: pt}
		}
		return npypage.WriteInt64(w.f.buf, v.Int)
	case typeinfer.FLOAT64:
		v, ok := typeinfer.ParseAs(typeinfer.FLOAT, field, bools)
		if !ok {
			return &ErrTypeIntegrity{Column: col, Value: field, Type: pt}
		}
		return npypage.WriteFloat64(w.f.buf, v.Float)
	case typeinfer.BOOLPAGE:
		v, ok := typeinfer.ParseAs(typeinfer.BOOL, field, bools)
		if !ok {
			return &ErrTypeIntegrity{Column: col, Value: field, Type: pt}
		}
		return npypage.WriteBool(w.f.buf, v.Bool)
	case typeinfer.OBJECT:
		return w.writeObject(field, rank, bools, col)
	default:
		return fmt.Errorf("ingest: column %d has no resolved page type", col)
	}
}

// writeObject serializes None for a null-set member, otherwise tries
// rank's attempt order (most pass-1 matches first, STRING after every
// other type that matched) and serializes the first type that
// succeeds.
func (w *pageWriter) writeObject(field string, rank *typeinfer.RankCounter, bools typeinfer.BoolSynonyms, col int) error {
	if typeinfer.IsNull(field) {
		w.obj.PutNone()
		return nil
	}
	for _, dt := range rank.Types() {
		v, ok := typeinfer.ParseAs(dt, field, bools)
		if !ok {
			continue
		}
		switch dt {
		case typeinfer.NONE:
			w.obj.PutNone()
		case typeinfer.BOOL:
			w.obj.PutBool(v.Bool)
		case typeinfer.INT:
			w.obj.PutInt(v.Int)
		case typeinfer.FLOAT:
			w.obj.PutFloat(v.Float)
		case typeinfer.DATE, typeinfer.DATEUS:
			w.obj.PutDate(v.Time)
		case typeinfer.TIME:
			w.obj.PutTime(v.Time, v.HasOffset, v.OffsetSeconds)
		case typeinfer.DATETIME, typeinfer.DATETIMEUS:
			w.obj.PutDatetime(v.Time, v.HasOffset, v.OffsetSeconds)
		case typeinfer.STRING:
			w.obj.PutString(v.Str)
		default:
			continue
		}
		return nil
	}
	return &ErrTypeIntegrity{Column: col, Value: field, Type: typeinfer.OBJECT}
}
