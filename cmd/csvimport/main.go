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

// Command csvimport plans and executes the CSV/TSV-to-typed-page
// ingestion pipeline: the "import" subcommand runs the task planner
// and, unless told not to, dispatches every Task; the "task"
// subcommand runs exactly one Task, the unit a parallel worker
// process executes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/colpages/csvingest/csvfsm"
	"github.com/colpages/csvingest/dispatch"
	"github.com/colpages/csvingest/encio"
	"github.com/colpages/csvingest/ingest"
	"github.com/colpages/csvingest/typeinfer"
)

var (
	dashEncoding      string
	dashDelimiter     string
	dashQuotechar     string
	dashEscapechar    string
	dashLineterm      string
	dashDoublequote   bool
	dashSkipInitial   bool
	dashSkipTrailing  bool
	dashStrict        bool
	dashQuoting       string
	dashGuessDtypes   bool
	dashPageSize      int
	dashDir           string
	dashPages         string
	dashFields        string
	dashTrueSynonyms  string
	dashFalseSynonyms string

	logger = log.New(os.Stderr, "", log.Lshortfile)
)

func init() {
	flag.StringVar(&dashEncoding, "encoding", "UTF8", "input encoding: UTF8, UTF16, or WIN1252")
	flag.StringVar(&dashDelimiter, "delimiter", ",", "field delimiter character")
	flag.StringVar(&dashQuotechar, "quotechar", `"`, "quote character")
	flag.StringVar(&dashEscapechar, "escapechar", "", "escape character (empty disables escaping)")
	flag.StringVar(&dashLineterm, "lineterminator", `\n`, "line terminator character (backslash escapes \\n, \\r, \\t accepted)")
	flag.BoolVar(&dashDoublequote, "doublequote", true, "a doubled quote character represents one literal quote")
	flag.BoolVar(&dashSkipInitial, "skipinitialspace", false, "skip whitespace immediately after a delimiter")
	flag.BoolVar(&dashSkipTrailing, "skiptrailingspace", false, "trim trailing whitespace from each field")
	flag.BoolVar(&dashStrict, "strict", false, "treat illegal quote/escape sequences as fatal")
	flag.StringVar(&dashQuoting, "quoting", "QUOTE_MINIMAL", "quoting mode: QUOTE_MINIMAL, QUOTE_ALL, QUOTE_NONNUMERIC, QUOTE_NONE, QUOTE_STRINGS, QUOTE_NOTNULL")
	flag.BoolVar(&dashGuessDtypes, "guess_dtypes", false, "infer a typed page per column instead of writing UNICODE pages")
	flag.IntVar(&dashPageSize, "page_size", 1_000_000, "rows per slice/page")
	flag.StringVar(&dashDir, "dir", "", "working directory for pages/, manifest.json, and tasks.txt (default: the source file's directory)")
	flag.StringVar(&dashPages, "pages", "", "task subcommand: comma-separated destination page paths, one per kept column")
	flag.StringVar(&dashFields, "fields", "", "task subcommand: comma-separated source field indices, one per kept column")
	flag.StringVar(&dashTrueSynonyms, "bool_true", "", "comma-separated additional BOOL-true spellings")
	flag.StringVar(&dashFalseSynonyms, "bool_false", "", "comma-separated additional BOOL-false spellings")

	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s [flags] import <path> <execute:bool> <multiprocess:bool>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s [flags] task --pages=p1,p2,... --fields=i1,i2,... <path> <offset_bytes> <row_count>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nflags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "import":
		err = runImport(args[1:])
	case "task":
		err = runTask(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		exit(err)
	}
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func dialect() (csvfsm.Dialect, error) {
	delim, err := csvfsm.ParseDialectChar("delimiter", dashDelimiter)
	if err != nil {
		return csvfsm.Dialect{}, err
	}
	quote, err := csvfsm.ParseDialectChar("quotechar", dashQuotechar)
	if err != nil {
		return csvfsm.Dialect{}, err
	}
	esc, err := csvfsm.ParseDialectChar("escapechar", dashEscapechar)
	if err != nil {
		return csvfsm.Dialect{}, err
	}
	term, err := csvfsm.ParseDialectChar("lineterminator", dashLineterm)
	if err != nil {
		return csvfsm.Dialect{}, err
	}
	quoting, err := csvfsm.ParseQuoting(dashQuoting)
	if err != nil {
		return csvfsm.Dialect{}, err
	}
	return csvfsm.Dialect{
		Delimiter:         delim,
		Quotechar:         quote,
		Escapechar:        esc,
		Lineterminator:    term,
		Doublequote:       dashDoublequote,
		SkipInitialSpace:  dashSkipInitial,
		SkipTrailingSpace: dashSkipTrailing,
		Strict:            dashStrict,
		Quoting:           quoting,
	}, nil
}

func boolSynonyms() typeinfer.BoolSynonyms {
	var b typeinfer.BoolSynonyms
	if dashTrueSynonyms != "" {
		b.True = strings.Split(dashTrueSynonyms, ",")
	}
	if dashFalseSynonyms != "" {
		b.False = strings.Split(dashFalseSynonyms, ",")
	}
	return b
}

// runImport implements the "import <path> <execute:bool>
// <multiprocess:bool>" subcommand.
func runImport(args []string) error {
	if len(args) < 3 {
		return errors.New("csvimport: import requires <path> <execute:bool> <multiprocess:bool>")
	}
	path := args[0]
	execute, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("csvimport: parsing <execute:bool>: %w", err)
	}
	multiprocess, err := strconv.ParseBool(args[2])
	if err != nil {
		return fmt.Errorf("csvimport: parsing <multiprocess:bool>: %w", err)
	}

	kind, err := encio.ParseKind(dashEncoding)
	if err != nil {
		return err
	}
	d, err := dialect()
	if err != nil {
		return err
	}

	pidDir := dashDir
	if pidDir == "" {
		pidDir = filepath.Dir(path)
	}
	plan, err := ingest.PlanTasks(ingest.Options{
		SourcePath:  path,
		Kind:        kind,
		Dialect:     d,
		Columns:     args[3:], // trailing positional args, if any, name requested columns
		PageSize:    dashPageSize,
		GuessDtypes: dashGuessDtypes,
		Bools:       boolSynonyms(),
		PagesDir:    pidDir,
	})
	if err != nil {
		return fmt.Errorf("csvimport: planning: %w", err)
	}

	if !execute {
		return plan.DescribeDryRun(os.Stdout)
	}

	if err := plan.WriteManifest(pidDir); err != nil {
		return fmt.Errorf("csvimport: writing manifest: %w", err)
	}

	if !multiprocess {
		logger.Printf("running %d tasks serially", len(plan.Tasks))
		return dispatch.Serial(plan)
	}

	// tasks.txt is written for every multiprocess import even though
	// dispatch.Parallel does not read it: it is the artifact an
	// external fan-out runner consumes instead of dispatch.Parallel's
	// in-process worker pool, e.g. when workers run across machines
	// rather than across this host's CPUs. Serial imports (above) do
	// not write it.
	if err := plan.WriteTasksFile(pidDir, os.Args[0]); err != nil {
		return fmt.Errorf("csvimport: writing tasks.txt: %w", err)
	}
	logger.Printf("dispatching %d tasks across worker processes", len(plan.Tasks))
	return dispatch.Parallel(plan, os.Args[0])
}

// runTask implements the "task --pages=... --fields=... <path>
// <offset_bytes> <row_count>" subcommand: it runs exactly one Task,
// the unit a parallel worker process executes. The --pages/--fields
// flags follow the subcommand word, so the global flag.Parse stopped
// before them; re-parse the remainder here.
func runTask(args []string) error {
	if err := flag.CommandLine.Parse(args); err != nil {
		return err
	}
	args = flag.CommandLine.Args()
	if len(args) != 3 {
		return errors.New("csvimport: task requires <path> <offset_bytes> <row_count>")
	}
	if dashPages == "" || dashFields == "" {
		return errors.New("csvimport: task requires --pages and --fields")
	}

	kind, err := encio.ParseKind(dashEncoding)
	if err != nil {
		return err
	}
	h, enc, err := encio.Open(args[0], kind)
	if err != nil {
		return fmt.Errorf("csvimport: resolving encoding: %w", err)
	}
	h.Close()
	d, err := dialect()
	if err != nil {
		return err
	}

	offset, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("csvimport: parsing <offset_bytes>: %w", err)
	}
	rowCount, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("csvimport: parsing <row_count>: %w", err)
	}

	pages := strings.Split(dashPages, ",")
	fieldStrs := strings.Split(dashFields, ",")
	if len(pages) != len(fieldStrs) {
		return fmt.Errorf("csvimport: --pages has %d entries but --fields has %d", len(pages), len(fieldStrs))
	}
	fields := make([]int, len(fieldStrs))
	for i, s := range fieldStrs {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("csvimport: parsing --fields entry %q: %w", s, err)
		}
		fields[i] = n
	}

	t := ingest.Task{
		SourcePath:     args[0],
		Encoding:       enc,
		Dialect:        d,
		PagePaths:      pages,
		ImportFields:   fields,
		RowOffsetBytes: offset,
		RowCount:       rowCount,
		GuessDtypes:    dashGuessDtypes,
		Bools:          boolSynonyms(),
	}
	return ingest.Process(t)
}
