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

// Package npypage writes single-column pages in the numeric-array page
// format: a fixed magic/version/header prelude (padded to a multiple
// of 64 bytes) followed by a raw body, either a fixed-stride typed
// array or a pickle-protocol-3 object stream.
package npypage

import (
	"bufio"
	"fmt"
	"os"

	"github.com/colpages/csvingest/typeinfer"
)

// dtype returns the NumPy dtype descriptor string for pt, using
// width for UNICODE pages (the maximum code-point length observed
// over the slice).
func dtype(pt typeinfer.PageType, width int) (string, error) {
	switch pt {
	case typeinfer.BOOLPAGE:
		return "|b1", nil
	case typeinfer.INT64:
		return "<i8", nil
	case typeinfer.FLOAT64:
		return "<f8", nil
	case typeinfer.UNICODE:
		return fmt.Sprintf("<U%d", width), nil
	case typeinfer.OBJECT:
		return "|O", nil
	default:
		return "", fmt.Errorf("npypage: cannot write a page of type %s", pt)
	}
}

// WriteHeader writes the magic/version/header prelude for a page of
// n elements to w, padding the total prelude length (magic + version
// + u16 length + header + padding + trailing newline) to a multiple
// of 64 bytes. The header dict literal is
// {'descr': '<dtype>', 'fortran_order': False, 'shape': (<n>,)}.
func WriteHeader(w *bufio.Writer, pt typeinfer.PageType, width, n int) error {
	dt, err := dtype(pt, width)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d,)}", dt, n)

	// total prelude = 6 (magic) + 2 (version) + 2 (u16 len) + headerLen + padding
	// padding includes the trailing '\n'; chosen so the grand total is
	// a multiple of 64.
	const fixedPrelude = 10
	rem := (fixedPrelude + len(header)) % 64
	padding := 64 - rem
	if padding == 0 {
		padding = 64
	}
	paddingHeader := uint16(len(header) + padding)

	if _, err := w.Write([]byte{0x93, 'N', 'U', 'M', 'P', 'Y', 1, 0}); err != nil {
		return err
	}
	if err := w.WriteByte(byte(paddingHeader)); err != nil {
		return err
	}
	if err := w.WriteByte(byte(paddingHeader >> 8)); err != nil {
		return err
	}
	if _, err := w.WriteString(header); err != nil {
		return err
	}
	for i := 0; i < padding-1; i++ {
		if err := w.WriteByte(' '); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// Create opens path for writing and returns a buffered writer over
// it, the caller's responsibility to Flush and Close.
func Create(path string) (*os.File, *bufio.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, bufio.NewWriterSize(f, 64*1024), nil
}
