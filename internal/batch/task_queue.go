// Package batch runs independent tasks on a bounded worker pool and picks
// which source files are worth sending to a code agent.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Task is a unit of work producing a T.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// TaskResult is the outcome of one task.
type TaskResult[T any] struct {
	TaskID string
	Value  T
	Err    error
}

// TaskQueue processes tasks with at most MaxWorkers running at once.
type TaskQueue[T any] struct {
	maxWorkers int

	mu    sync.Mutex
	tasks []Task[T]
}

// NewTaskQueue creates a queue. maxWorkers <= 0 uses one worker per CPU.
func NewTaskQueue[T any](maxWorkers int) *TaskQueue[T] {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &TaskQueue[T]{maxWorkers: maxWorkers}
}

// AddTask adds a task to the queue
func (q *TaskQueue[T]) AddTask(task Task[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

// ProcessAll runs every queued task and returns the results in the order the
// tasks were added. Tasks not started before ctx is done fail with its error.
func (q *TaskQueue[T]) ProcessAll(ctx context.Context) []TaskResult[T] {
	q.mu.Lock()
	tasks := make([]Task[T], len(q.tasks))
	copy(tasks, q.tasks)
	q.mu.Unlock()

	results := make([]TaskResult[T], len(tasks))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for range min(q.maxWorkers, len(tasks)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = execute(ctx, tasks[i])
			}
		}()
	}

	for i := range tasks {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return results
}

func execute[T any](ctx context.Context, task Task[T]) (res TaskResult[T]) {
	res.TaskID = task.ID
	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("task cancelled: %w", err)
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	res.Value, res.Err = task.Run(ctx)
	return res
}
