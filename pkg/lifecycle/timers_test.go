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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
)

type heartbeat struct {
	lifecycle.CustomEvent
	key string
}

func (h heartbeat) TimerKey() string { return h.key }

var _ = Describe("Timers", func() {
	Context("with a manual scheduler", func() {
		var (
			env       *testEnv
			scheduler *manualScheduler
		)

		BeforeEach(func() {
			scheduler = &manualScheduler{}
			env = newTestEnv(scheduler)
		})

		AfterEach(func() {
			env.shutdown()
		})

		It("delivers a key set twice exactly once, even if the first fire races in", func() {
			rec := &recorder{}
			c := env.create("double-set", rec)
			startAndWait(c)

			c.CreateTimer("k", time.Second, nil)
			c.CreateTimer("k", time.Second, nil)
			Eventually(scheduler.scheduled).Should(Equal(2))

			scheduler.fireAll()

			Eventually(func() int { return rec.count(isTimer("k")) }).Should(Equal(1))
			Consistently(func() int { return rec.count(isTimer("k")) }, 50*time.Millisecond).Should(Equal(1))
			Expect(c.Info().Timers).To(BeEmpty())
		})

		It("uses the factory to build the fired event", func() {
			rec := &recorder{}
			c := env.create("factory", rec)
			startAndWait(c)

			c.CreateTimer("beat", time.Second, func(key string) lifecycle.TimerEvent {
				return heartbeat{key: key}
			})
			Eventually(scheduler.scheduled).Should(Equal(1))
			scheduler.fireAll()

			Eventually(func() int {
				return rec.count(func(e lifecycle.Event) bool {
					h, ok := e.(heartbeat)

					return ok && h.key == "beat"
				})
			}).Should(Equal(1))
		})

		It("does not deliver a cancelled timer", func() {
			rec := &recorder{}
			c := env.create("cancelled", rec)
			startAndWait(c)

			c.CreateTimer("k", time.Second, nil)
			Eventually(scheduler.scheduled).Should(Equal(1))
			c.CancelTimer("k")
			Eventually(func() []string { return c.Info().Timers }).Should(BeEmpty())

			scheduler.fireAll()
			Consistently(func() int { return rec.count(isTimer("k")) }, 50*time.Millisecond).Should(BeZero())
		})

		It("does not create timers while stopped", func() {
			c := env.create("stopped-timer", &recorder{})

			c.CreateTimer("k", time.Second, nil)
			startAndWait(c)
			c.PostEvent(lifecycle.UserEvent{Payload: "sync"})

			Consistently(scheduler.scheduled, 50*time.Millisecond).Should(BeZero())
		})

		It("cancels live timers on stop", func() {
			rec := &recorder{}
			c := env.create("stop-timers", rec)
			startAndWait(c)

			c.CreateTimer("a", time.Second, nil)
			c.CreateTimer("b", time.Second, nil)
			Eventually(func() []string { return c.Info().Timers }).Should(Equal([]string{"a", "b"}))

			c.Stop()
			Eventually(func() []string { return c.Info().Timers }).Should(BeEmpty())

			c.Start()
			scheduler.fireAll()
			Consistently(func() int { return rec.count(isTimer("a")) + rec.count(isTimer("b")) }, 50*time.Millisecond).Should(BeZero())
		})
	})

	Context("with the default scheduler", func() {
		var env *testEnv

		BeforeEach(func() {
			env = newTestEnv(nil)
		})

		AfterEach(func() {
			env.shutdown()
		})

		It("fires once after the delay of the last set", func() {
			rec := &recorder{}
			c := env.create("real-timer", rec)
			startAndWait(c)

			c.CreateTimer("k", 20*time.Millisecond, nil)
			c.CreateTimer("k", 40*time.Millisecond, nil)

			Eventually(func() int { return rec.count(isTimer("k")) }).Should(Equal(1))
			Consistently(func() int { return rec.count(isTimer("k")) }, 100*time.Millisecond).Should(Equal(1))
		})
	})
})
