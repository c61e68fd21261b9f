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
	"strconv"
	"strings"

	"github.com/colpages/csvingest/csvfsm"
	"github.com/colpages/csvingest/typeinfer"
)

// shellQuote wraps s in single quotes, escaping any embedded single
// quote the POSIX-shell way, for tasks.txt lines consumed by an
// external fan-out runner.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// TaskArgs renders t's worker invocation as an argv slice (no shell
// quoting), for direct use with os/exec.Command by dispatch.Parallel.
func TaskArgs(t Task) []string {
	pages := make([]string, len(t.PagePaths))
	copy(pages, t.PagePaths)
	fields := make([]string, len(t.ImportFields))
	for i, f := range t.ImportFields {
		fields[i] = strconv.Itoa(f)
	}

	args := []string{"--encoding=" + t.Encoding.Kind.String()}
	args = append(args, dialectFlags(t.Dialect)...)
	if t.GuessDtypes {
		args = append(args, "--guess_dtypes")
	}
	args = append(args, boolFlags(t.Bools)...)
	args = append(args,
		"task",
		"--pages="+strings.Join(pages, ","),
		"--fields="+strings.Join(fields, ","),
		t.SourcePath,
		strconv.FormatUint(t.RowOffsetBytes, 10),
		strconv.Itoa(t.RowCount),
	)
	return args
}

// TaskCommandLine renders t as a shell-escaped invocation of binary's
// "task" subcommand: the same argv TaskArgs produces, with every
// element quoted so that delimiters, quote characters, and paths
// survive a shell's word splitting.
func TaskCommandLine(binary string, t Task) string {
	parts := []string{shellQuote(binary)}
	for _, a := range TaskArgs(t) {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func dialectFlags(d csvfsm.Dialect) []string {
	return []string{
		fmt.Sprintf("--delimiter=%s", csvfsm.EscapeDialectChar(d.Delimiter)),
		fmt.Sprintf("--quotechar=%s", csvfsm.EscapeDialectChar(d.Quotechar)),
		fmt.Sprintf("--escapechar=%s", csvfsm.EscapeDialectChar(d.Escapechar)),
		fmt.Sprintf("--lineterminator=%s", csvfsm.EscapeDialectChar(d.Lineterminator)),
		fmt.Sprintf("--doublequote=%v", d.Doublequote),
		fmt.Sprintf("--skipinitialspace=%v", d.SkipInitialSpace),
		fmt.Sprintf("--skiptrailingspace=%v", d.SkipTrailingSpace),
		fmt.Sprintf("--strict=%v", d.Strict),
		"--quoting=" + d.Quoting.String(),
	}
}

func boolFlags(b typeinfer.BoolSynonyms) []string {
	var out []string
	if len(b.True) > 0 {
		out = append(out, "--bool_true="+strings.Join(b.True, ","))
	}
	if len(b.False) > 0 {
		out = append(out, "--bool_false="+strings.Join(b.False, ","))
	}
	return out
}
