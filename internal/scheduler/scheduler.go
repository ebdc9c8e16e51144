package scheduler

import (
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("dbml.scheduler")

type Task struct {
	Name    string
	Execute func() error
}

// Scheduler runs background tasks one at a time on a single worker, off the
// request path of the language server.
type Scheduler struct {
	taskQueue chan Task
	stopChan  chan struct{}

	// mu guards stopped and every send on taskQueue, so Stop never closes
	// the queue under a pending send.
	mu      sync.RWMutex
	stopped bool

	wg sync.WaitGroup
}

// NewScheduler creates a new Scheduler with the specified queue size.
func NewScheduler(queueSize int) *Scheduler {
	return &Scheduler{
		taskQueue: make(chan Task, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// Run starts the worker. Tasks queued before Run wait for it.
func (s *Scheduler) Run() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for task := range s.taskQueue {
			s.execute(task)
		}
	}()
}

func (s *Scheduler) execute(task Task) {
	logger.Debugf("executing %s", task.Name)
	if err := task.Execute(); err != nil {
		logger.Errorf("task %s failed: %v", task.Name, err)
	}
}

// Schedule queues task, waiting for room in the queue. It reports false when
// the scheduler is stopped.
func (s *Scheduler) Schedule(task Task) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		logger.Warningf("scheduler stopped, dropping %s", task.Name)
		return false
	}
	s.taskQueue <- task
	return true
}

// TrySchedule queues task unless the queue is full or the scheduler is
// stopped.
func (s *Scheduler) TrySchedule(task Task) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return false
	}
	select {
	case s.taskQueue <- task:
		return true
	default:
		logger.Debugf("skipped scheduling %s, queue is full", task.Name)
		return false
	}
}

// SchedulePeriodic queues lowTask now and then every interval. Ticks that
// find the queue full are skipped.
func (s *Scheduler) SchedulePeriodic(interval time.Duration, lowTask Task) {
	s.TrySchedule(lowTask)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.TrySchedule(lowTask)
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop refuses new tasks, runs the ones already queued and waits for the
// worker and periodic goroutines to exit. Run must have been called.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	logger.Info("stopping scheduler")
	s.stopped = true
	close(s.stopChan)
	close(s.taskQueue)
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("scheduler stopped")
}
