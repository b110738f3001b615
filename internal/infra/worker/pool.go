package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

// Pool runs a batch of tasks on a fixed number of goroutines.
type Pool struct {
	n int
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{n: workers}
}

// Run executes tasks and waits for all started ones to finish. Once ctx is done no new task
// starts. The returned error joins every task error and ctx.Err() if tasks were skipped.
func (p *Pool) Run(ctx context.Context, tasks []Task) error {
	jobs := make(chan Task)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	workers := p.n
	if len(tasks) < workers {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				if err := task(ctx); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}

	var stopped error
feed:
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			stopped = err
			break
		}
		select {
		case jobs <- task:
		case <-ctx.Done():
			stopped = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if stopped != nil {
		errs = append(errs, stopped)
	}
	return errors.Join(errs...)
}
