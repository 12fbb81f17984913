// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
	"github.com/corda/corda-runtime-os-sub044/pkg/sentry"
)

// Executor runs coordinator batches. Submit must never block the caller.
type Executor interface {
	Submit(task func())
}

// WorkerPool is the shared Executor of all coordinators. Every task gets its
// own goroutine, but at most workerCount tasks run at the same time.
type WorkerPool struct {
	sem         *semaphore.Weighted
	logger      *zap.SugaredLogger
	waiting     map[uint64]time.Time
	wg          sync.WaitGroup
	waitMu      sync.Mutex
	workerCount int
	nextID      uint64
	shutdown    atomic.Bool
}

// NewWorkerPool creates a pool running at most workerCount tasks at once.
func NewWorkerPool(workerCount int, log *zap.SugaredLogger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}

	if log == nil {
		log = logger.For(logger.ComponentWorkerPool)
	}

	metrics.InitErrorCounter(metrics.ComponentWorkerPool, "shared")

	return &WorkerPool{
		sem:         semaphore.NewWeighted(int64(workerCount)),
		logger:      log,
		waiting:     make(map[uint64]time.Time),
		workerCount: workerCount,
	}
}

// Submit schedules task and returns immediately. Tasks submitted after
// Shutdown are dropped.
func (p *WorkerPool) Submit(task func()) {
	if p.shutdown.Load() {
		p.logger.Warn("Dropping task submitted after shutdown")

		return
	}

	p.waitMu.Lock()
	p.nextID++
	id := p.nextID
	p.waiting[id] = time.Now()
	p.waitMu.Unlock()

	p.wg.Add(1)

	go p.run(id, task)
}

func (p *WorkerPool) run(id uint64, task func()) {
	defer p.wg.Done()

	// Acquire only fails on a cancelled context.
	_ = p.sem.Acquire(context.Background(), 1)
	defer p.sem.Release(1)

	p.waitMu.Lock()
	delete(p.waiting, id)
	p.waitMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			metrics.IncErrorCount(metrics.ComponentWorkerPool, "shared")
			sentry.ReportIssuef(sentry.IssueTypeError, p.logger, "[WorkerPool.run] task panicked: %v", r)
		}
	}()

	task()
}

// OldestWait returns how long the longest waiting task has been waiting for
// a worker, or zero if no task is waiting.
func (p *WorkerPool) OldestWait() time.Duration {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()

	var oldest time.Duration

	now := time.Now()
	for _, since := range p.waiting {
		if d := now.Sub(since); d > oldest {
			oldest = d
		}
	}

	return oldest
}

// Waiting returns the number of submitted tasks not yet running.
func (p *WorkerPool) Waiting() int {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()

	return len(p.waiting)
}

// WorkerCount returns the concurrency bound of the pool.
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// Shutdown stops accepting tasks and waits for the submitted ones to finish.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.shutdown.Store(true)

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker pool tasks: %w", ctx.Err())
	}
}
