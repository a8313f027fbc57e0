// Package app owns the worker lifecycle: exactly one ingestion worker runs at
// a time, and a restart always builds a fresh worker instance.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Mournian-ai/Mournian-Overlay/internal/eventsub"
)

// WorkerFactory builds a fresh worker instance. Called on every start and
// restart; a cancelled worker is never reused.
type WorkerFactory func() *eventsub.Worker

// Service supervises the single ingestion worker.
type Service struct {
	mu         sync.Mutex
	newWorker  WorkerFactory
	worker     *eventsub.Worker
	cancel     context.CancelFunc
	workerDone chan struct{}
}

// NewService creates the supervisor. No worker runs until Start.
func NewService(factory WorkerFactory) *Service {
	return &Service{newWorker: factory}
}

// Start launches a fresh worker. If one is already running it is cancelled
// and awaited first.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	worker := s.newWorker()
	done := make(chan struct{})

	s.worker = worker
	s.cancel = cancel
	s.workerDone = done

	go func() {
		defer close(done)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Worker exited unexpectedly", "error", err)
		}
	}()
	slog.Info("EventSub worker started")
}

// Restart cancels the current worker and launches a fresh instance.
func (s *Service) Restart() {
	slog.Info("Restarting EventSub worker")
	s.Start()
}

// Stop cancels the current worker and waits for it to unwind.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// stopLocked cancels and awaits the running worker. Callers hold the mutex.
func (s *Service) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.workerDone
	s.cancel = nil
	s.worker = nil
	s.workerDone = nil
}

// Status returns the current worker's status snapshot, or a zero snapshot
// when no worker is running.
func (s *Service) Status() eventsub.Status {
	s.mu.Lock()
	worker := s.worker
	s.mu.Unlock()

	if worker == nil {
		return eventsub.Status{}
	}
	return worker.Status()
}
