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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/colpages/csvingest/csvfsm"
	"github.com/colpages/csvingest/encio"
	"github.com/colpages/csvingest/typeinfer"
)

// ErrNoRecords is returned when the source file has no records at all
// (not even a header).
var ErrNoRecords = errors.New("ingest: end of file (no records)")

// ErrMissingColumns is returned when a requested column name is not
// present in the header row.
type ErrMissingColumns struct {
	Names []string
}

func (e *ErrMissingColumns) Error() string {
	return fmt.Sprintf("ingest: missing columns: %s", strings.Join(e.Names, ", "))
}

// Options configures a planner run. Columns == nil selects every
// header column. PagesDir is the working ("<pid>") directory new page
// files are allocated under (a "pages" subdirectory is created beneath it).
type Options struct {
	SourcePath  string
	Kind        encio.Kind
	Dialect     csvfsm.Dialect
	Columns     []string
	PageSize    int
	GuessDtypes bool
	Bools       typeinfer.BoolSynonyms
	PagesDir    string
}

// PlanTasks builds the newline index, resolves the requested column
// selection against the header row, allocates disjoint page paths,
// and emits one Task per row slice.
func PlanTasks(opt Options) (*Plan, error) {
	offsets, count, enc, err := encio.FindNewlines(opt.SourcePath, opt.Kind)
	if err != nil {
		return nil, fmt.Errorf("ingest: indexing %s: %w", opt.SourcePath, err)
	}
	if count == 0 {
		return nil, ErrNoRecords
	}

	header, err := readRecord(opt.SourcePath, enc, opt.Dialect, offsets[0])
	if err != nil {
		return nil, fmt.Errorf("ingest: reading header row: %w", err)
	}

	fieldIndex, err := resolveColumns(header, opt.Columns)
	if err != nil {
		return nil, err
	}
	names := uniqueNames(selectNames(header, fieldIndex))

	pageSize := opt.PageSize
	if pageSize <= 0 {
		pageSize = 1
	}
	alloc := &pathAllocator{dir: filepath.Join(opt.PagesDir, "pages")}

	plan := &Plan{
		SourcePath:  opt.SourcePath,
		Encoding:    enc,
		Dialect:     opt.Dialect,
		Columns:     names,
		PageSize:    pageSize,
		GuessDtypes: opt.GuessDtypes,
		Bools:       opt.Bools,
		Pages:       make(map[string][]string, len(names)),
	}

	// record indices: 0 is the header, [1, count-1] are data rows
	// (count is the total record count including the header).
	for start := 1; start < count; start += pageSize {
		rows := pageSize
		if remaining := count - start; rows > remaining {
			rows = remaining
		}
		paths := make([]string, len(fieldIndex))
		for i, name := range names {
			p, err := alloc.next()
			if err != nil {
				return nil, err
			}
			paths[i] = p
			plan.Pages[name] = append(plan.Pages[name], p)
		}
		plan.Tasks = append(plan.Tasks, Task{
			SourcePath:     opt.SourcePath,
			Encoding:       enc,
			Dialect:        opt.Dialect,
			PagePaths:      paths,
			ImportFields:   append([]int(nil), fieldIndex...),
			RowOffsetBytes: offsets[start],
			RowCount:       rows,
			GuessDtypes:    opt.GuessDtypes,
			Bools:          opt.Bools,
		})
	}
	return plan, nil
}

// resolveColumns maps each requested column name to its field index
// in header. A nil/empty requested list selects every header column
// in header order. Missing names are reported together rather than
// failing on the first one, so a caller sees the whole problem at once.
func resolveColumns(header, requested []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, seen := pos[h]; !seen {
			pos[h] = i
		}
	}
	if len(requested) == 0 {
		out := make([]int, len(header))
		for i := range header {
			out[i] = i
		}
		return out, nil
	}
	var missing []string
	out := make([]int, 0, len(requested))
	for _, name := range requested {
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out = append(out, i)
	}
	if len(missing) > 0 {
		return nil, &ErrMissingColumns{Names: missing}
	}
	return out, nil
}

func selectNames(header []string, fieldIndex []int) []string {
	out := make([]string, len(fieldIndex))
	for i, fi := range fieldIndex {
		out[i] = header[fi]
	}
	return out
}

// uniqueNames generates a unique output name for every entry by
// appending "_k" suffixes against previously chosen names, comparing
// names with a case-sensitive exact match.
func uniqueNames(names []string) []string {
	seen := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, n := range names {
		candidate := n
		for {
			if _, exists := seen[candidate]; !exists {
				break
			}
			seen[n]++
			candidate = n + "_" + strconv.Itoa(seen[n])
		}
		seen[candidate] = 0
		out[i] = candidate
	}
	return out
}

// readRecord tokenizes exactly one record starting at offset,
// independent of any Task's pass-1/pass-2 state.
func readRecord(path string, enc encio.Encoding, d csvfsm.Dialect, offset uint64) ([]string, error) {
	h, err := encio.OpenAt(path, enc, offset)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	tok := csvfsm.New(h, d)
	fields, err := tok.Next()
	if err != nil && err != io.EOF {
		return nil, err
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out, nil
}

// pathAllocator assigns monotonically increasing "<n>.npy" page paths
// under dir, skipping any name that already exists on disk (see
// DESIGN.md's Open Question 3).
type pathAllocator struct {
	dir string
	n   int
}

func (a *pathAllocator) next() (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("ingest: creating pages directory: %w", err)
	}
	for {
		candidate := filepath.Join(a.dir, strconv.Itoa(a.n)+".npy")
		a.n++
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}

// manifest is the JSON shape written to "<pid>/manifest.json" so a
// downstream table loader can discover pages without re-parsing
// tasks.txt.
type manifest struct {
	ImportID   string              `json:"import_id"`
	SourcePath string              `json:"source_path"`
	Encoding   string              `json:"encoding"`
	Dialect    csvfsm.Dialect      `json:"dialect"`
	Columns    []string            `json:"columns"`
	PageSize   int                 `json:"page_size"`
	Pages      map[string][]string `json:"pages"`
}

// WriteManifest serializes plan to "<pidDir>/manifest.json". Each
// write gets a fresh import id so that successive imports into the
// same directory remain distinguishable to a loader.
func (p *Plan) WriteManifest(pidDir string) error {
	m := manifest{
		ImportID:   uuid.NewString(),
		SourcePath: p.SourcePath,
		Encoding:   p.Encoding.String(),
		Dialect:    p.Dialect,
		Columns:    p.Columns,
		PageSize:   p.PageSize,
		Pages:      p.Pages,
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(pidDir, "manifest.json"), b, 0o644)
}

// WriteTasksFile writes "<pidDir>/pages/tasks.txt", one shell-escaped
// worker invocation per line, for consumption by an external parallel
// runner.
func (p *Plan) WriteTasksFile(pidDir, binary string) error {
	lines := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		lines = append(lines, TaskCommandLine(binary, t))
	}
	path := filepath.Join(pidDir, "pages", "tasks.txt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// DescribeDryRun writes a human-readable summary of the resolved
// column list, chosen page paths, and slice boundaries to w, for
// "import <path> false ..." invocations that plan without writing any
// pages.
func (p *Plan) DescribeDryRun(w io.Writer) error {
	fmt.Fprintf(w, "source: %s (%s)\n", p.SourcePath, p.Encoding)
	fmt.Fprintf(w, "columns: %s\n", strings.Join(p.Columns, ", "))
	fmt.Fprintf(w, "page size: %d rows\n", p.PageSize)
	fmt.Fprintf(w, "slices: %d\n", len(p.Tasks))
	for i, t := range p.Tasks {
		fmt.Fprintf(w, "  [%d] rows=%d offset=%d pages=%s\n", i, t.RowCount, t.RowOffsetBytes, strings.Join(t.PagePaths, ", "))
	}
	return nil
}
