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

package starvationchecker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
	"github.com/corda/corda-runtime-os-sub044/pkg/sentry"
)

// DefaultCheckInterval is how often the checker samples the pool.
const DefaultCheckInterval = time.Second

// WaitSource reports how long queued work has been waiting for a worker.
// lifecycle.WorkerPool implements it.
type WaitSource interface {
	OldestWait() time.Duration
	Waiting() int
}

// StarvationChecker watches a worker pool and reports when a coordinator batch
// has been waiting for a worker longer than the threshold. A starved pool
// means coordinators stop processing events even though they are scheduled.
//
// When starvation is detected, it:
// - Adds the waiting time to the starvation metric
// - Reports a warning with the waiting time and queue depth.
type StarvationChecker struct {
	source              WaitSource
	ctx                 context.Context //nolint:containedctx // This is intentional for background service lifecycle
	logger              *zap.SugaredLogger
	cancel              context.CancelFunc
	lastCheck           time.Time
	wg                  sync.WaitGroup
	starvationThreshold time.Duration
	lastWait            time.Duration
	interval            time.Duration
	detections          int
	stopOnce            sync.Once
	mutex               sync.RWMutex
}

// NewStarvationChecker creates a checker for source and starts its background
// goroutine, which samples the pool every interval (DefaultCheckInterval if
// not positive). It must be stopped with Stop.
func NewStarvationChecker(source WaitSource, threshold, interval time.Duration) *StarvationChecker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	checker := &StarvationChecker{
		source:              source,
		starvationThreshold: threshold,
		interval:            interval,
		logger:              logger.For(logger.ComponentStarvationChecker),
		ctx:                 ctx,
		cancel:              cancel,
	}

	checker.wg.Add(1)

	go checker.checkStarvationLoop()

	checker.logger.Infof("Starvation checker created with threshold %s", threshold)

	return checker
}

func (s *StarvationChecker) checkStarvationLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// Check samples the pool once and reports whether it is starved.
func (s *StarvationChecker) Check() bool {
	wait := s.source.OldestWait()
	starved := wait > s.starvationThreshold

	s.mutex.Lock()
	s.lastCheck = time.Now()
	s.lastWait = wait

	if starved {
		s.detections++
	}
	s.mutex.Unlock()

	if !starved {
		s.logger.Debugf("Worker pool is healthy, oldest batch waited %.3f seconds", wait.Seconds())

		return false
	}

	metrics.AddStarvationTime(wait.Seconds())
	sentry.ReportIssuef(sentry.IssueTypeWarning, s.logger,
		"[StarvationChecker.Check] Worker pool starvation detected: a batch has waited %.2f seconds, %d batches queued",
		wait.Seconds(), s.source.Waiting())

	return true
}

// Stop terminates the background checker. It is safe to call more than once.
func (s *StarvationChecker) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping starvation checker")
		s.cancel()
		s.wg.Wait()
		s.logger.Info("Starvation checker stopped")
	})
}

// LastCheck returns when the pool was last sampled.
func (s *StarvationChecker) LastCheck() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.lastCheck
}

// LastWait returns the oldest waiting time seen by the last check.
func (s *StarvationChecker) LastWait() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.lastWait
}

// Detections returns how many checks found the pool starved.
func (s *StarvationChecker) Detections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.detections
}
