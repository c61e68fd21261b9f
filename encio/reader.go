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

// Package encio presents text files in any of the supported input
// encodings (UTF-8, UTF-16, and a single-byte code page) as a uniform
// sequence of decoded logical lines, with byte-accurate offset tracking
// so that callers can seek to and resume from an arbitrary record
// boundary.
package encio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

// Kind identifies an input text encoding family.
type Kind int

const (
	UTF8 Kind = iota
	UTF16
	WIN1252
)

func (k Kind) String() string {
	switch k {
	case UTF8:
		return "UTF8"
	case UTF16:
		return "UTF16"
	case WIN1252:
		return "WIN1252"
	default:
		return "unknown"
	}
}

// ParseKind parses the CLI/config spelling of an encoding name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "UTF8":
		return UTF8, nil
	case "UTF16":
		return UTF16, nil
	case "WIN1252":
		return WIN1252, nil
	default:
		return 0, fmt.Errorf("encio: unknown encoding %q", s)
	}
}

// Encoding is the fully-resolved encoding tag for a file: the
// configured Kind plus, for UTF16, the endianness detected from the
// byte-order mark. A Task carries a resolved Encoding so that workers
// never need to re-detect it by re-reading the BOM from an arbitrary
// seek offset.
type Encoding struct {
	Kind Kind
	// LittleEndian is only meaningful when Kind == UTF16. Per the
	// byte-order-mark convention this package follows: the two
	// leading bytes 0xFE,0xFF select little-endian and 0xFF,0xFE
	// select big-endian (see Open).
	LittleEndian bool
}

func (e Encoding) String() string {
	if e.Kind != UTF16 {
		return e.Kind.String()
	}
	if e.LittleEndian {
		return "UTF16LE"
	}
	return "UTF16BE"
}

var (
	// ErrBadBOM is returned when a UTF-16 file is missing or has an
	// unrecognized byte-order mark. A UTF-8 file without a complete
	// BOM is read from byte 0.
	ErrBadBOM = errors.New("encio: missing or invalid byte-order mark")
	// ErrOddSize is returned when a UTF-16 file has an odd number of
	// bytes, which cannot be a whole sequence of 16-bit code units.
	ErrOddSize = errors.New("encio: UTF-16 file has an odd byte length")
)

var (
	utf8BOM    = [3]byte{0xEF, 0xBB, 0xBF}
	utf16BOMLE = [2]byte{0xFE, 0xFF}
	utf16BOMBE = [2]byte{0xFF, 0xFE}
)

// Handle owns a read-only file descriptor and presents it as a
// sequence of decoded logical lines in the file's Encoding. A Handle
// is opened once, read sequentially (or seeked to a record boundary),
// and closed on every exit path by the caller.
type Handle struct {
	f   *os.File
	enc Encoding
	r   *bufio.Reader
	pos uint64
	eof bool
	dec *charmap.Charmap // only set for WIN1252
}

// Open opens path for the given encoding kind, detects (for UTF16) or
// consumes (for UTF8) any byte-order mark, and positions the handle at
// the first record of the file. The returned Encoding is fully
// resolved and should be persisted (e.g. into a Task) so that later
// seeks via OpenAt do not need to repeat detection.
func Open(path string, kind Kind) (*Handle, Encoding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Encoding{}, err
	}
	h := &Handle{f: f, r: bufio.NewReader(f)}
	switch kind {
	case UTF8:
		h.enc = Encoding{Kind: UTF8}
		n, peek, err := peekBytes(h.r, 3)
		if err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, Encoding{}, err
		}
		if n >= 3 && bytes.Equal(peek[:3], utf8BOM[:]) {
			h.r.Discard(3)
			h.pos = 3
		}
	case UTF16:
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, Encoding{}, err
		}
		if fi.Size()%2 != 0 {
			f.Close()
			return nil, Encoding{}, ErrOddSize
		}
		var bom [2]byte
		if _, err := io.ReadFull(h.r, bom[:]); err != nil {
			f.Close()
			return nil, Encoding{}, fmt.Errorf("%w: %v", ErrBadBOM, err)
		}
		switch bom {
		case utf16BOMLE:
			h.enc = Encoding{Kind: UTF16, LittleEndian: true}
		case utf16BOMBE:
			h.enc = Encoding{Kind: UTF16, LittleEndian: false}
		default:
			f.Close()
			return nil, Encoding{}, ErrBadBOM
		}
		h.pos = 2
	case WIN1252:
		h.enc = Encoding{Kind: WIN1252}
		h.dec = charmap.Windows1252
	default:
		f.Close()
		return nil, Encoding{}, fmt.Errorf("encio: unsupported encoding kind %d", kind)
	}
	return h, h.enc, nil
}

// OpenAt opens path for a fully-resolved Encoding (as produced by Open
// or carried in a Task) and seeks directly to offset, which must be a
// byte position previously returned as a newline-index entry or a
// ReadLine post-offset. No BOM detection is performed.
func OpenAt(path string, enc Encoding, offset uint64) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset != 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	h := &Handle{
		f:   f,
		enc: enc,
		r:   bufio.NewReader(f),
		pos: offset,
	}
	if enc.Kind == WIN1252 {
		h.dec = charmap.Windows1252
	}
	return h, nil
}

// Pos returns the current byte offset into the underlying file.
func (h *Handle) Pos() uint64 { return h.pos }

// EOF reports whether the handle has been exhausted.
func (h *Handle) EOF() bool { return h.eof }

// Encoding returns the handle's resolved encoding tag.
func (h *Handle) Encoding() Encoding { return h.enc }

// Close releases the underlying file descriptor. Safe to call
// multiple times.
func (h *Handle) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	return err
}

// ReadLine returns the next logical line (terminator stripped) and the
// byte offset immediately following the terminator. found is false
// with a nil error at a clean end-of-file.
func (h *Handle) ReadLine() (found bool, line string, postOffset uint64, err error) {
	if h.eof {
		return false, "", h.pos, nil
	}
	switch h.enc.Kind {
	case UTF16:
		return h.readLineUTF16()
	default:
		return h.readLineBytes()
	}
}

func (h *Handle) readLineBytes() (bool, string, uint64, error) {
	raw, err := h.r.ReadBytes('\n')
	if len(raw) == 0 && err != nil {
		if errors.Is(err, io.EOF) {
			h.eof = true
			return false, "", h.pos, nil
		}
		return false, "", h.pos, err
	}
	h.pos += uint64(len(raw))
	atEOF := errors.Is(err, io.EOF)
	if atEOF {
		h.eof = true
	}
	line := stripTerminator(raw)
	if h.enc.Kind == WIN1252 {
		decoded, derr := h.dec.NewDecoder().Bytes(line)
		if derr != nil {
			return false, "", h.pos, fmt.Errorf("encio: transcoding WIN1252 line: %w", derr)
		}
		return true, string(decoded), h.pos, nil
	}
	return true, string(line), h.pos, nil
}

func (h *Handle) readLineUTF16() (bool, string, uint64, error) {
	var units []uint16
	for {
		var pair [2]byte
		n, err := io.ReadFull(h.r, pair[:])
		if n == 0 && errors.Is(err, io.EOF) {
			h.eof = true
			if len(units) == 0 {
				return false, "", h.pos, nil
			}
			break
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return false, "", h.pos, fmt.Errorf("encio: truncated UTF-16 code unit at offset %d", h.pos)
			}
			return false, "", h.pos, err
		}
		h.pos += 2
		var u uint16
		if h.enc.LittleEndian {
			u = binary.LittleEndian.Uint16(pair[:])
		} else {
			u = binary.BigEndian.Uint16(pair[:])
		}
		if u == 0x000A {
			break
		}
		units = append(units, u)
	}
	decoded := utf16.Decode(units)
	return true, string(decoded), h.pos, nil
}

func stripTerminator(raw []byte) []byte {
	n := len(raw)
	if n > 0 && raw[n-1] == '\n' {
		n--
	}
	if n > 0 && raw[n-1] == '\r' {
		n--
	}
	return raw[:n]
}

// peekBytes peeks up to n bytes without consuming them, returning
// however many were available.
func peekBytes(r *bufio.Reader, n int) (int, []byte, error) {
	b, err := r.Peek(n)
	return len(b), b, err
}
