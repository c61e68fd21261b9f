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

package csvfsm

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/exp/slices"

	"github.com/colpages/csvingest/encio"
)

// eol is the reserved sentinel code point fed to the state machine to
// signal "no more characters are available right now"; it is
// distinct from every real rune because decoding a string never
// yields a negative rune (invalid input decodes to utf8.RuneError,
// U+FFFD).
const eol rune = -1

type state int

const (
	stateStartRecord state = iota
	stateStartField
	stateEscapedChar
	stateInField
	stateInQuotedField
	stateEscapeInQuotedField
	stateQuoteInQuotedField
	stateEatCRNL
	stateAfterEscapedCRNL
)

// maxField is the hard ceiling on a single field's buffered size.
const maxField = 128 * 1024

// ErrFieldTooLong is returned when a single field exceeds maxField
// bytes.
var ErrFieldTooLong = errors.New("csvfsm: field exceeds 128KiB limit")

// ErrStrictQuote is returned, in strict mode, when the closing quote
// of a quoted field is followed by something other than a second
// quote character, the delimiter, or a line break; Next also wraps it
// when the file ends inside an unterminated quoted field.
var ErrStrictQuote = errors.New("csvfsm: '\"' expected after '\"' (strict mode)")

// ErrNewlineInField is returned when a bare newline is seen outside
// of EAT_CRNL's expected positions.
var ErrNewlineInField = errors.New("csvfsm: newline character seen in unquoted field")

// Tokenizer splits successive logical records from an encio.Handle
// into fields according to a Dialect. Its reusable field buffer
// avoids a per-row allocation of a string slice; callers that need to
// retain fields past the next call to Next must copy them.
type Tokenizer struct {
	h *encio.Handle
	d Dialect

	state  state
	cur    []byte
	fields []string

	numericFieldHint bool
	rowIndex         int
}

// New returns a Tokenizer reading logical records from h.
func New(h *encio.Handle, d Dialect) *Tokenizer {
	return &Tokenizer{h: h, d: d, cur: make([]byte, 0, 4096)}
}

// RowIndex returns the number of records successfully returned by Next so far.
func (t *Tokenizer) RowIndex() int { return t.rowIndex }

// Next returns the next record's fields, reused across calls: callers
// that need to retain the slice or its strings past the following
// call must copy them. Next returns io.EOF once the underlying handle
// is exhausted with no partial record pending.
func (t *Tokenizer) Next() ([]string, error) {
	// Grow, don't reallocate: most CSVs have a constant field count, so
	// the previous record's width is a good capacity hint.
	prevWidth := len(t.fields)
	t.fields = slices.Grow(t.fields[:0], prevWidth)
	t.cur = t.cur[:0]
	t.state = stateStartRecord
	t.numericFieldHint = false

	attempts := 0
	for {
		found, line, _, err := t.h.ReadLine()
		if err != nil {
			return nil, err
		}
		if !found {
			if attempts == 0 {
				return nil, io.EOF
			}
			// Mid-record truncation: physical end-of-file while a
			// quoted field (or other non-terminal state) was still
			// open. Feed the EOL sentinel to let the state machine
			// decide; IN_QUOTED_FIELD silently swallows it, so a
			// truncated quote needs an explicit decision here.
			done, err := t.feed(eol)
			if err != nil {
				return nil, err
			}
			if !done {
				if t.d.Strict {
					return nil, fmt.Errorf("csvfsm: unterminated quoted field at end of file: %w", ErrStrictQuote)
				}
				t.saveField()
			}
			break
		}
		attempts++
		recordDone := false
		for _, c := range line {
			done, err := t.feed(c)
			if err != nil {
				return nil, err
			}
			if done {
				recordDone = true
				break
			}
		}
		if recordDone {
			break
		}
		if done, err := t.feed('\n'); err != nil {
			return nil, err
		} else if done {
			break
		}
		if done, err := t.feed(eol); err != nil {
			return nil, err
		} else if done {
			break
		}
		// still mid-record (e.g. inside a quoted field): loop around
		// and pull another physical line.
	}
	t.rowIndex++
	return t.fields, nil
}

// feed advances the state machine by one code point and reports
// whether the record is now complete.
func (t *Tokenizer) feed(c rune) (bool, error) {
again:
	switch t.state {
	case stateStartRecord:
		if c == '\n' || c == '\r' {
			t.state = stateEatCRNL
			return false, nil
		}
		t.state = stateStartField
		goto again

	case stateStartField:
		switch {
		case c == eol || c == '\n' || c == '\r':
			t.saveField()
			if c == eol {
				t.state = stateStartRecord
				return true, nil
			}
			t.state = stateEatCRNL
			return false, nil
		case c == t.d.Quotechar && t.d.Quoting != QuoteNone:
			t.state = stateInQuotedField
		case t.d.Escapechar != 0 && c == t.d.Escapechar:
			t.state = stateEscapedChar
		case c == ' ' && t.d.SkipInitialSpace:
			// discard
		case c == t.d.Delimiter:
			t.saveField()
		default:
			if t.d.Quoting == QuoteNonNumeric {
				t.numericFieldHint = true
			}
			if err := t.appendChar(c); err != nil {
				return false, err
			}
			t.state = stateInField
		}

	case stateEscapedChar:
		if c == '\n' || c == '\r' {
			if err := t.appendChar(c); err != nil {
				return false, err
			}
			t.state = stateAfterEscapedCRNL
			return false, nil
		}
		if c == eol {
			c = '\n'
		}
		if err := t.appendChar(c); err != nil {
			return false, err
		}
		t.state = stateInField

	case stateAfterEscapedCRNL:
		if c == eol {
			return false, nil
		}
		t.state = stateInField
		goto again

	case stateInField:
		switch {
		case c == eol || c == '\n' || c == '\r':
			t.saveField()
			if c == eol {
				t.state = stateStartRecord
				return true, nil
			}
			t.state = stateEatCRNL
			return false, nil
		case t.d.Escapechar != 0 && c == t.d.Escapechar:
			t.state = stateEscapedChar
		case c == t.d.Delimiter:
			t.saveField()
			t.state = stateStartField
		default:
			if err := t.appendChar(c); err != nil {
				return false, err
			}
		}

	case stateInQuotedField:
		switch {
		case c == eol:
			// discard: an unterminated quoted field continues on
			// the next physical line.
		case t.d.Escapechar != 0 && c == t.d.Escapechar:
			t.state = stateEscapeInQuotedField
		case c == t.d.Quotechar && t.d.Quoting != QuoteNone:
			if t.d.Doublequote {
				t.state = stateQuoteInQuotedField
			} else {
				t.state = stateInField
			}
		default:
			if err := t.appendChar(c); err != nil {
				return false, err
			}
		}

	case stateEscapeInQuotedField:
		if c == eol {
			c = '\n'
		}
		if err := t.appendChar(c); err != nil {
			return false, err
		}
		t.state = stateInQuotedField

	case stateQuoteInQuotedField:
		switch {
		case t.d.Quoting != QuoteNone && c == t.d.Quotechar:
			if err := t.appendChar(c); err != nil {
				return false, err
			}
			t.state = stateInQuotedField
		case c == t.d.Delimiter:
			t.saveField()
			t.state = stateStartField
		case c == eol || c == '\n' || c == '\r':
			t.saveField()
			if c == eol {
				t.state = stateStartRecord
				return true, nil
			}
			t.state = stateEatCRNL
			return false, nil
		case !t.d.Strict:
			if err := t.appendChar(c); err != nil {
				return false, err
			}
			t.state = stateInField
		default:
			return false, ErrStrictQuote
		}

	case stateEatCRNL:
		switch {
		case c == '\n' || c == '\r':
			// discard
		case c == eol:
			t.state = stateStartRecord
			return true, nil
		default:
			return false, ErrNewlineInField
		}
	}
	return false, nil
}

func (t *Tokenizer) appendChar(c rune) error {
	if len(t.cur) >= maxField {
		return ErrFieldTooLong
	}
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], c)
	if len(t.cur)+n > maxField {
		return ErrFieldTooLong
	}
	t.cur = append(t.cur, buf[:n]...)
	return nil
}

func (t *Tokenizer) saveField() {
	field := t.cur
	if t.d.SkipTrailingSpace {
		for len(field) > 0 && field[len(field)-1] == ' ' {
			field = field[:len(field)-1]
		}
	}
	t.fields = append(t.fields, string(field))
	t.cur = t.cur[:0]
}
