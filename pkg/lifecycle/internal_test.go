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
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

type countingHandle struct {
	cancels atomic.Int32
}

func (h *countingHandle) Cancel() { h.cancels.Add(1) }

var _ = Describe("StateManager", func() {
	var s *StateManager

	BeforeEach(func() {
		s = NewStateManager()
	})

	It("hands out batches in FIFO order", func() {
		for i := 0; i < 5; i++ {
			s.PostEvent(UserEvent{Payload: i})
		}

		Expect(s.NextBatch(2)).To(Equal([]Event{UserEvent{Payload: 0}, UserEvent{Payload: 1}}))
		Expect(s.QueueLen()).To(Equal(3))
		Expect(s.NextBatch(10)).To(Equal([]Event{UserEvent{Payload: 2}, UserEvent{Payload: 3}, UserEvent{Payload: 4}}))
		Expect(s.NextBatch(10)).To(BeEmpty())
	})

	It("cancels the previous timer of a key", func() {
		first := &countingHandle{}
		second := &countingHandle{}

		s.SetTimer("k", s.newTimerToken(), first)
		s.SetTimer("k", s.newTimerToken(), second)

		Expect(first.cancels.Load()).To(Equal(int32(1)))
		Expect(second.cancels.Load()).To(BeZero())
		Expect(s.IsTimerRunning("k")).To(BeTrue())
	})

	It("only accepts the fire of the current token", func() {
		old := s.newTimerToken()
		s.SetTimer("k", old, &countingHandle{})
		current := s.newTimerToken()
		s.SetTimer("k", current, &countingHandle{})

		Expect(s.takeFiredTimer("k", old)).To(BeFalse())
		Expect(s.IsTimerRunning("k")).To(BeTrue())
		Expect(s.takeFiredTimer("k", current)).To(BeTrue())
		Expect(s.IsTimerRunning("k")).To(BeFalse())
	})

	It("cancels all timers", func() {
		a := &countingHandle{}
		b := &countingHandle{}
		s.SetTimer("a", s.newTimerToken(), a)
		s.SetTimer("b", s.newTimerToken(), b)

		Expect(s.TimerKeys()).To(Equal([]string{"a", "b"}))
		Expect(s.CancelAllTimers()).To(Equal(2))
		Expect(a.cancels.Load()).To(Equal(int32(1)))
		Expect(b.cancels.Load()).To(Equal(int32(1)))
		Expect(s.TimerKeys()).To(BeEmpty())
		Expect(s.CancelTimer("a")).To(BeFalse())
	})
})

var _ = Describe("DependentCoordinatorMap", func() {
	It("counts references per registration", func() {
		m := NewDependentCoordinatorMap()
		r1 := &Registration{}
		r2 := &Registration{}

		m.Add(r1)
		m.Add(r1)
		m.Add(r2)
		Expect(m.Len()).To(Equal(2))
		Expect(m.Count(r1)).To(Equal(2))

		m.Remove(r1)
		Expect(m.Count(r1)).To(Equal(1))
		Expect(m.Registrations()).To(ConsistOf(r1, r2))

		m.Remove(r1)
		m.Remove(r1)
		Expect(m.Registrations()).To(ConsistOf(r2))

		m.Clear()
		Expect(m.Len()).To(BeZero())
	})
})

var _ = Describe("WorkerPool", func() {
	It("bounds the number of running tasks", func() {
		pool := NewWorkerPool(2, zaptest.NewLogger(GinkgoT()).Sugar())

		release := make(chan struct{})
		var running, maxRunning atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 6; i++ {
			wg.Add(1)
			pool.Submit(func() {
				defer wg.Done()

				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}

				<-release
				running.Add(-1)
			})
		}

		Eventually(pool.Waiting).Should(Equal(4))
		Eventually(pool.OldestWait).Should(BeNumerically(">", 0))

		close(release)
		wg.Wait()

		Expect(maxRunning.Load()).To(Equal(int32(2)))
		Expect(pool.Waiting()).To(BeZero())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(pool.Shutdown(ctx)).To(Succeed())
	})

	It("survives a panicking task", func() {
		pool := NewWorkerPool(1, zaptest.NewLogger(GinkgoT()).Sugar())

		pool.Submit(func() { panic("task failure") })

		done := make(chan struct{})
		pool.Submit(func() { close(done) })
		Eventually(done).Should(BeClosed())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(pool.Shutdown(ctx)).To(Succeed())
	})

	It("drops tasks after shutdown", func() {
		pool := NewWorkerPool(1, zaptest.NewLogger(GinkgoT()).Sugar())
		Expect(pool.Shutdown(context.Background())).To(Succeed())

		var ran atomic.Bool
		pool.Submit(func() { ran.Store(true) })
		Consistently(ran.Load, 50*time.Millisecond).Should(BeFalse())
	})
})

// queuedExecutor runs submitted tasks only when drained.
type queuedExecutor struct {
	tasks []func()
	mu    sync.Mutex
}

func (e *queuedExecutor) Submit(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tasks = append(e.tasks, task)
}

func (e *queuedExecutor) drain() {
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.mu.Unlock()

			return
		}

		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()

		task()
	}
}

func hasStatusSeries(name string) bool {
	families, err := prometheus.DefaultGatherer.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() != "lifecycle_core_coordinator_status" {
			continue
		}

		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "coordinator" && label.GetValue() == name {
					return true
				}
			}
		}
	}

	return false
}

var _ = Describe("Coordinator close", func() {
	var (
		exec    *queuedExecutor
		factory *CoordinatorFactory
		noop    Handler
	)

	BeforeEach(func() {
		exec = &queuedExecutor{}
		factory = NewCoordinatorFactory(NewRegistry(), exec, nil, zaptest.NewLogger(GinkgoT()).Sugar())
		noop = func(Event, *Coordinator) error { return nil }
	})

	It("drops the status series of a closed coordinator", func() {
		c, err := factory.CreateCoordinator("closed-status-series", noop)
		Expect(err).NotTo(HaveOccurred())
		Expect(hasStatusSeries("closed-status-series")).To(BeTrue())

		c.Close()
		exec.drain()

		Expect(hasStatusSeries("closed-status-series")).To(BeFalse())
	})

	It("keeps the status series of a coordinator reusing the name", func() {
		old, err := factory.CreateCoordinator("reused-status-series", noop)
		Expect(err).NotTo(HaveOccurred())

		old.Close()

		fresh, err := factory.CreateCoordinator("reused-status-series", noop)
		Expect(err).NotTo(HaveOccurred())

		exec.drain()
		Expect(hasStatusSeries("reused-status-series")).To(BeTrue())

		fresh.Close()
		exec.drain()
		Expect(hasStatusSeries("reused-status-series")).To(BeFalse())
	})
})
