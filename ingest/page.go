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
	"bufio"
	"os"

	"github.com/colpages/csvingest/npypage"
	"github.com/colpages/csvingest/typeinfer"
)

// npypageFile owns one destination page's file handle and buffered
// writer, closed exactly once via close.
type npypageFile struct {
	f     *os.File
	buf   *bufio.Writer
	width int
}

func (n *npypageFile) close() error {
	if n.f == nil {
		return nil
	}
	ferr := n.buf.Flush()
	cerr := n.f.Close()
	n.f = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}

// openPage creates path, writes its header (and, for OBJECT pages,
// the pickle prelude), and returns a pageWriter ready to receive
// nRows values.
func openPage(path string, pt typeinfer.PageType, width, nRows int) (*pageWriter, error) {
	f, buf, err := npypage.Create(path)
	if err != nil {
		return nil, err
	}
	if err := npypage.WriteHeader(buf, pt, width, nRows); err != nil {
		f.Close()
		return nil, err
	}
	pw := &pageWriter{f: &npypageFile{f: f, buf: buf, width: width}}
	if pt == typeinfer.OBJECT {
		pw.obj = npypage.NewObjectWriter(buf, nRows)
		if err := pw.obj.Start(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return pw, nil
}
