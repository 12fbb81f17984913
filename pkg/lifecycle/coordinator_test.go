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

package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
)

var _ = Describe("Coordinator", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(nil)
	})

	AfterEach(func() {
		env.shutdown()
	})

	Context("event ordering", func() {
		It("delivers events from concurrent posters in enqueue order", func() {
			rec := &recorder{}
			c := env.create("ordered", rec)
			startAndWait(c)

			const posters = 8
			const perPoster = 200

			var (
				mu   sync.Mutex
				next int
				wg   sync.WaitGroup
			)

			for p := 0; p < posters; p++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					for i := 0; i < perPoster; i++ {
						mu.Lock()
						c.PostEvent(lifecycle.UserEvent{Payload: next})
						next++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Eventually(func() int { return len(rec.payloads()) }).Should(Equal(posters * perPoster))

			for i, p := range rec.payloads() {
				Expect(p).To(Equal(i))
			}
		})

		It("never runs two batches of one coordinator at the same time", func() {
			var active, maxActive int32
			var mu sync.Mutex

			rec := &recorder{onEvent: func(e lifecycle.Event, _ *lifecycle.Coordinator) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(100 * time.Microsecond)

				mu.Lock()
				active--
				mu.Unlock()

				return nil
			}}
			c := env.create("serial", rec)
			startAndWait(c)

			var wg sync.WaitGroup
			for p := 0; p < 4; p++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						c.PostEvent(lifecycle.UserEvent{Payload: i})
					}
				}()
			}
			wg.Wait()

			Eventually(func() int { return len(rec.payloads()) }).Should(Equal(200))

			mu.Lock()
			defer mu.Unlock()
			Expect(maxActive).To(Equal(int32(1)))
		})
	})

	Context("start and stop", func() {
		It("delivers a single start for repeated starts", func() {
			rec := &recorder{}
			c := env.create("starter", rec)

			c.Start()
			c.Start()
			c.Start()
			c.PostEvent(lifecycle.UserEvent{Payload: "marker"})

			Eventually(rec.payloads).Should(ConsistOf("marker"))
			Expect(rec.count(isStart)).To(Equal(1))
		})

		It("delivers a single stop for repeated stops", func() {
			rec := &recorder{}
			c := env.create("stopper", rec)
			startAndWait(c)

			c.Stop()
			c.Stop()
			c.Start()
			c.PostEvent(lifecycle.UserEvent{Payload: "marker"})

			Eventually(rec.payloads).Should(ConsistOf("marker"))
			Expect(rec.count(isStop)).To(Equal(1))
			Expect(rec.count(isStart)).To(Equal(2))
		})

		It("drops user events while stopped", func() {
			rec := &recorder{}
			c := env.create("dropper", rec)

			c.PostEvent(lifecycle.UserEvent{Payload: "early"})
			c.Start()
			c.PostEvent(lifecycle.UserEvent{Payload: "late"})

			Eventually(rec.payloads).Should(ConsistOf("late"))
		})

		It("sets status DOWN on stop, leaving ERROR", func() {
			rec := &recorder{}
			c := env.create("failing", rec)
			startAndWait(c)

			setStatus(c, lifecycle.StatusError)

			c.Stop()
			Eventually(c.IsRunning).Should(BeFalse())
			Eventually(c.Status).Should(Equal(lifecycle.StatusDown))
		})

		It("refuses UP while not running", func() {
			rec := &recorder{}
			c := env.create("idle", rec)

			c.UpdateStatus(lifecycle.StatusUp, "not started")
			Expect(c.Status()).To(Equal(lifecycle.StatusDown))
		})

		It("waits for a status", func() {
			rec := &recorder{onEvent: func(e lifecycle.Event, c *lifecycle.Coordinator) error {
				if isStart(e) {
					c.UpdateStatus(lifecycle.StatusUp, "started")
				}

				return nil
			}}
			c := env.create("waiter", rec)
			c.Start()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(c.WaitForStatus(ctx, lifecycle.StatusUp)).To(Succeed())

			short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancelShort()
			Expect(c.WaitForStatus(short, lifecycle.StatusError)).To(MatchError(context.DeadlineExceeded))
		})
	})

	Context("error handling", func() {
		It("redelivers a handler error as an ErrorEvent", func() {
			boom := errors.New("boom")

			var causes []error
			var mu sync.Mutex

			rec := &recorder{}
			rec.onEvent = func(e lifecycle.Event, _ *lifecycle.Coordinator) error {
				switch ev := e.(type) {
				case lifecycle.UserEvent:
					if ev.Payload == "fail" {
						return boom
					}
				case *lifecycle.ErrorEvent:
					mu.Lock()
					causes = append(causes, ev.Cause)
					mu.Unlock()
					ev.MarkHandled()
				}

				return nil
			}
			c := env.create("erroring", rec)
			startAndWait(c)

			c.PostEvent(lifecycle.UserEvent{Payload: "fail"})
			c.PostEvent(lifecycle.UserEvent{Payload: "after"})

			Eventually(rec.payloads).Should(Equal([]any{"fail", "after"}))

			mu.Lock()
			defer mu.Unlock()
			Expect(causes).To(HaveLen(1))
			Expect(causes[0]).To(MatchError(boom))
		})

		It("turns a panic into an ErrorEvent", func() {
			var cause error
			var mu sync.Mutex

			rec := &recorder{}
			rec.onEvent = func(e lifecycle.Event, _ *lifecycle.Coordinator) error {
				switch ev := e.(type) {
				case lifecycle.UserEvent:
					if ev.Payload == "panic" {
						panic("bad state")
					}
				case *lifecycle.ErrorEvent:
					mu.Lock()
					cause = ev.Cause
					mu.Unlock()
					ev.MarkHandled()
				}

				return nil
			}
			c := env.create("panicking", rec)
			startAndWait(c)

			c.PostEvent(lifecycle.UserEvent{Payload: "panic"})

			Eventually(func() error {
				mu.Lock()
				defer mu.Unlock()

				return cause
			}).Should(MatchError(lifecycle.ErrHandlerPanic))
		})

		It("keeps processing after an unhandled error", func() {
			rec := &recorder{}
			rec.onEvent = func(e lifecycle.Event, _ *lifecycle.Coordinator) error {
				switch ev := e.(type) {
				case lifecycle.UserEvent:
					if ev.Payload == "fail" {
						return errors.New("first failure")
					}
				case *lifecycle.ErrorEvent:
					return errors.New("error handling failed too")
				}

				return nil
			}
			c := env.create("unhandled", rec)
			startAndWait(c)

			c.PostEvent(lifecycle.UserEvent{Payload: "fail"})
			c.PostEvent(lifecycle.UserEvent{Payload: "fail"})
			c.PostEvent(lifecycle.UserEvent{Payload: "ok"})

			Eventually(rec.payloads).Should(Equal([]any{"fail", "fail", "ok"}))
			Expect(rec.count(func(e lifecycle.Event) bool {
				_, ok := e.(*lifecycle.ErrorEvent)

				return ok
			})).To(Equal(2))
		})
	})

	Context("custom events", func() {
		type reconfigure struct {
			lifecycle.CustomEvent
			value int
		}

		It("delivers types embedding CustomEvent", func() {
			rec := &recorder{}
			c := env.create("custom", rec)
			startAndWait(c)

			c.PostEvent(reconfigure{value: 7})

			Eventually(func() int {
				return rec.count(func(e lifecycle.Event) bool {
					r, ok := e.(reconfigure)

					return ok && r.value == 7
				})
			}).Should(Equal(1))
		})
	})

	Context("usage errors", func() {
		It("rejects duplicate names until the first one is closed", func() {
			c := env.create("unique", &recorder{})

			_, err := env.factory.CreateCoordinator("unique", (&recorder{}).handle)
			Expect(err).To(MatchError(lifecycle.ErrCoordinatorExists))
			Expect(lifecycle.IsUsageError(err)).To(BeTrue())

			c.Close()
			Expect(c.IsClosed()).To(BeTrue())

			again, err := env.factory.CreateCoordinator("unique", (&recorder{}).handle)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.ID()).NotTo(Equal(c.ID()))
		})

		It("rejects an empty name and a nil handler", func() {
			_, err := env.factory.CreateCoordinator("", (&recorder{}).handle)
			Expect(err).To(MatchError(lifecycle.ErrInvalidArgument))

			_, err = env.factory.CreateCoordinator("nil-handler", nil)
			Expect(err).To(MatchError(lifecycle.ErrInvalidArgument))
		})

		It("rejects following unknown names", func() {
			c := env.create("lonely", &recorder{})

			_, err := c.FollowStatusChangesByName([]string{"missing"})
			Expect(err).To(MatchError(lifecycle.ErrCoordinatorNotFound))

			var ue *lifecycle.UsageError
			Expect(errors.As(err, &ue)).To(BeTrue())
			Expect(ue.Name).To(Equal("missing"))
		})

		It("rejects following from a closed coordinator", func() {
			env.create("target", &recorder{})
			c := env.create("closing", &recorder{})
			c.Close()

			_, err := c.FollowStatusChangesByName([]string{"target"})
			Expect(err).To(MatchError(lifecycle.ErrCoordinatorClosed))
		})
	})

	Context("close", func() {
		It("stops the coordinator and releases its registrations", func() {
			upRec := &recorder{}
			up := env.create("close-upstream", upRec)
			rec := &recorder{}
			c := env.create("close-downstream", rec)
			startAndWait(up)
			startAndWait(c)

			_, err := c.FollowStatusChangesByName([]string{"close-upstream"})
			Expect(err).NotTo(HaveOccurred())
			Eventually(func() int { return up.Info().Dependents }).Should(Equal(1))

			c.Close()
			Eventually(c.IsRunning).Should(BeFalse())
			Eventually(func() int { return up.Info().Dependents }).Should(Equal(0))
			Eventually(func() int { return rec.count(isStop) }).Should(Equal(1))

			_, ok := env.registry.Get("close-downstream")
			Expect(ok).To(BeFalse())
		})

		It("drops events posted after close", func() {
			rec := &recorder{}
			c := env.create("closed", rec)
			startAndWait(c)

			c.Close()
			c.PostEvent(lifecycle.UserEvent{Payload: "late"})
			c.Start()

			Consistently(rec.payloads, 100*time.Millisecond).Should(BeEmpty())
			Expect(c.IsRunning()).To(BeFalse())
		})
	})
})
