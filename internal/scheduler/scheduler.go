package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Scheduler fires named tasks on fixed intervals. Each task runs on its
// own goroutine; a per-task lock guarantees two invocations of the same
// task never overlap, even when a tick arrives while the previous run is
// still in flight.
type Scheduler struct {
	tasks []*task
	wg    sync.WaitGroup
}

type task struct {
	name     string
	interval time.Duration
	run      func(runID string)
	mu       sync.Mutex
}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Register(name string, interval time.Duration, run func(runID string)) {
	if interval <= 0 {
		panic(fmt.Sprintf("task %q registered with non-positive interval", name))
	}
	for _, t := range s.tasks {
		if t.name == name {
			panic(fmt.Sprintf("task %q registered twice", name))
		}
	}
	s.tasks = append(s.tasks, &task{name: name, interval: interval, run: run})
}

// Start launches one ticker goroutine per registered task. It returns
// immediately; cancel the context and call Wait to stop.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		log.Info().
			Str("task", t.name).
			Dur("interval", t.interval).
			Msg("Starting scheduled task")

		s.wg.Add(1)
		go func(t *task) {
			defer s.wg.Done()
			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runOnce(t)
				}
			}
		}(t)
	}
}

// Trigger runs a task by name outside its cadence, subject to the same
// exclusion guard. Reports whether the task ran.
func (s *Scheduler) Trigger(name string) bool {
	for _, t := range s.tasks {
		if t.name == name {
			return s.runOnce(t)
		}
	}
	return false
}

// Wait blocks until all task goroutines have exited and in-flight runs
// have completed.
func (s *Scheduler) Wait() {
	s.wg.Wait()
	for _, t := range s.tasks {
		t.mu.Lock()
		t.mu.Unlock()
	}
}

func (s *Scheduler) runOnce(t *task) (ran bool) {
	if !t.mu.TryLock() {
		log.Warn().Str("task", t.name).Msg("Previous run still in progress, skipping tick")
		return false
	}
	defer t.mu.Unlock()
	ran = true

	runID := uuid.NewString()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("task", t.name).
				Str("run_id", runID).
				Interface("panic", r).
				Msg("Task panicked")
		}
	}()

	log.Debug().Str("task", t.name).Str("run_id", runID).Msg("Task starting")
	t.run(runID)
	log.Debug().
		Str("task", t.name).
		Str("run_id", runID).
		Dur("duration", time.Since(start)).
		Msg("Task finished")

	return ran
}
