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

// Package dispatch runs a Plan's Tasks either serially in the current
// process or fanned out to independent worker processes running
// concurrently. Tasks share no state and own disjoint output paths,
// so ordering between them never matters.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/colpages/csvingest/ingest"
)

// Serial runs every Task in plan, in order, in the current process.
// It stops at the first failing Task; pages written by earlier,
// successful Tasks remain on disk.
func Serial(plan *ingest.Plan) error {
	for i, t := range plan.Tasks {
		if err := ingest.Process(t); err != nil {
			return fmt.Errorf("dispatch: task %d: %w", i, err)
		}
	}
	return nil
}

// item pairs a Task with its index in plan.Tasks, so a worker can
// report which Task it ran without the Tasks needing to carry their
// own index.
type item struct {
	index int
	task  ingest.Task
}

// Parallel fans plan's Tasks out to a fixed pool of worker goroutines,
// each running independent exec.Command invocations of binary's
// "task" subcommand concurrently: a fixed number of workers drain a
// shared work channel instead of one task being started only after the
// previous one's process has exited.
//
// Because Tasks are disjoint, no synchronization between the spawned
// processes themselves is needed. A non-zero exit from any worker
// cancels every Task not yet started and kills any Task still
// running, and Parallel removes the page paths belonging to every
// Task that had not completed at the time of the failure, leaving
// completed Tasks' pages untouched.
func Parallel(plan *ingest.Plan, binary string) error {
	tasks := plan.Tasks
	n := len(tasks)
	if n == 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	work := make(chan item, workers)
	errs := make(chan error, n)
	completed := make([]bool, n)
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for it := range work {
				if ctx.Err() != nil {
					// An earlier Task already failed; leave this one
					// unstarted rather than adding more work after
					// the import is already doomed.
					errs <- nil
					continue
				}
				cmd := taskCommand(ctx, binary, it.task)
				cmd.Stdout = os.Stdout
				cmd.Stderr = os.Stderr
				if err := cmd.Run(); err != nil {
					errs <- fmt.Errorf("dispatch: worker for task %d exited non-zero: %w", it.index, err)
					cancel()
					continue
				}
				mu.Lock()
				completed[it.index] = true
				mu.Unlock()
				errs <- nil
			}
		}()
	}

	go func() {
		for i, t := range tasks {
			work <- item{index: i, task: t}
		}
		close(work)
	}()

	var outerr error
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil && outerr == nil {
			outerr = err
		}
	}
	wg.Wait()

	if outerr != nil {
		cleanupOrphans(plan, completed)
	}
	return outerr
}

// taskCommand builds the argv for one Task's worker invocation,
// mirroring the argument layout ingest.TaskCommandLine renders for
// tasks.txt. The command is bound to ctx so that cancelling ctx (on
// another Task's failure) kills the process if it is still running.
func taskCommand(ctx context.Context, binary string, t ingest.Task) *exec.Cmd {
	args := ingest.TaskArgs(t)
	return exec.CommandContext(ctx, binary, args...)
}

// cleanupOrphans removes every page path belonging to a Task that had
// not completed when the dispatcher aborted.
func cleanupOrphans(plan *ingest.Plan, completed []bool) {
	for i, t := range plan.Tasks {
		if completed[i] {
			continue
		}
		for _, p := range t.PagePaths {
			os.Remove(p)
		}
	}
}
