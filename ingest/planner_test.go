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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/colpages/csvingest/csvfsm"
	"github.com/colpages/csvingest/encio"
)

func writeTemp(t *testing.T, name, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func planOpts(path string, pageSize int) Options {
	return Options{
		SourcePath:  path,
		Kind:        encio.UTF8,
		Dialect:     csvfsm.Default(),
		PageSize:    pageSize,
		GuessDtypes: true,
		PagesDir:    filepath.Dir(path),
	}
}

func TestPlanTasksS1Scenario(t *testing.T) {
	p := writeTemp(t, "s1.csv", "A,B\n1,2\n3,4\n5,6\n")
	plan, err := PlanTasks(planOpts(p, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Columns) != 2 || plan.Columns[0] != "A" || plan.Columns[1] != "B" {
		t.Fatalf("columns = %v", plan.Columns)
	}
	if len(plan.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(plan.Tasks))
	}
	if plan.Tasks[0].RowCount != 3 {
		t.Fatalf("row count = %d, want 3", plan.Tasks[0].RowCount)
	}
}

func TestPlanTasksMissingColumns(t *testing.T) {
	p := writeTemp(t, "s1.csv", "A,B\n1,2\n")
	opt := planOpts(p, 10)
	opt.Columns = []string{"A", "Z"}
	_, err := PlanTasks(opt)
	if err == nil {
		t.Fatal("expected missing-columns error")
	}
	var mc *ErrMissingColumns
	if !errors.As(err, &mc) {
		t.Fatalf("expected *ErrMissingColumns, got %T: %v", err, err)
	}
	if len(mc.Names) != 1 || mc.Names[0] != "Z" {
		t.Fatalf("missing = %v", mc.Names)
	}
}

func TestPlanTasksEmptyFileFails(t *testing.T) {
	p := writeTemp(t, "empty.csv", "")
	_, err := PlanTasks(planOpts(p, 10))
	if err != ErrNoRecords {
		t.Fatalf("err = %v, want ErrNoRecords", err)
	}
}

func TestPlanTasksSlicesAreDisjointAndCoverFile(t *testing.T) {
	var rows string
	for i := 0; i < 10; i++ {
		rows += "x\n"
	}
	p := writeTemp(t, "s6.csv", "A\n"+rows)
	plan, err := PlanTasks(planOpts(p, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Tasks) != 4 { // 10 rows / page_size 3 = 4 slices (3,3,3,1)
		t.Fatalf("tasks = %d, want 4", len(plan.Tasks))
	}
	total := 0
	seen := map[string]bool{}
	for _, task := range plan.Tasks {
		total += task.RowCount
		for _, pg := range task.PagePaths {
			if seen[pg] {
				t.Fatalf("page path %s reused across tasks", pg)
			}
			seen[pg] = true
		}
	}
	if total != 10 {
		t.Fatalf("total rows = %d, want 10", total)
	}
	if plan.Tasks[len(plan.Tasks)-1].RowCount != 1 {
		t.Fatalf("final slice row count = %d, want 1", plan.Tasks[len(plan.Tasks)-1].RowCount)
	}
}

func TestUniqueNamesSuffixesDuplicates(t *testing.T) {
	got := uniqueNames([]string{"A", "A", "A", "B"})
	want := []string{"A", "A_1", "A_2", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
