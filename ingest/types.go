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

// Package ingest implements the task planner and slice processor that
// turn a delimited source file and a column selection into one typed
// page per column: PlanTasks computes the work units, and Process
// executes exactly one of them.
package ingest

import (
	"github.com/colpages/csvingest/csvfsm"
	"github.com/colpages/csvingest/encio"
	"github.com/colpages/csvingest/typeinfer"
)

// Task is one self-contained work unit: read RowCount logical records
// starting at RowOffsetBytes from SourcePath, and write one page per
// kept column to PagePaths. Two Tasks from the same Plan never share
// a page path or an overlapping byte range.
type Task struct {
	SourcePath     string
	Encoding       encio.Encoding
	Dialect        csvfsm.Dialect
	PagePaths      []string // per kept column, in column order
	ImportFields   []int    // per kept column, the source field index to read
	RowOffsetBytes uint64
	RowCount       int
	GuessDtypes    bool
	Bools          typeinfer.BoolSynonyms
}

// Plan is the resolved output of a Task Planner run: every Task plus
// the bookkeeping a downstream loader needs to find the pages it
// produced.
type Plan struct {
	SourcePath  string
	Encoding    encio.Encoding
	Dialect     csvfsm.Dialect
	Columns     []string // kept, de-duplicated output column names, in order
	PageSize    int
	GuessDtypes bool
	Bools       typeinfer.BoolSynonyms
	Tasks       []Task
	// Pages maps each output column name to its ordered page paths,
	// one per Task, in Task order.
	Pages map[string][]string
}
