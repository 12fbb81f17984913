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

var _ = Describe("Registration", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(nil)
	})

	AfterEach(func() {
		env.shutdown()
	})

	It("reports UP only once every upstream is UP, once per flip", func() {
		b := env.create("B", &recorder{})
		c := env.create("C", &recorder{})
		aRec := &recorder{}
		a := env.create("A", aRec)

		startAndWait(b)
		startAndWait(c)

		reg, err := a.FollowStatusChangesByName([]string{"B", "C"})
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.Upstreams()).To(Equal([]string{"B", "C"}))

		startAndWait(a)
		Consistently(aRec.registrationStatuses, 50*time.Millisecond).Should(BeEmpty())
		Expect(a.Status()).To(Equal(lifecycle.StatusDown))

		setStatus(b, lifecycle.StatusUp)
		Consistently(aRec.registrationStatuses, 50*time.Millisecond).Should(BeEmpty())

		setStatus(c, lifecycle.StatusUp)
		Eventually(aRec.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp}))

		setStatus(c, lifecycle.StatusDown)
		Eventually(aRec.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp, lifecycle.StatusDown}))
		Expect(reg.Status()).To(Equal(lifecycle.StatusDown))
		Expect(reg.UpstreamStatuses()).To(Equal(map[string]lifecycle.Status{
			"B": lifecycle.StatusUp,
			"C": lifecycle.StatusDown,
		}))
	})

	It("does not repeat an unchanged aggregate", func() {
		x := env.create("X", &recorder{})
		y := env.create("Y", &recorder{})
		rec := &recorder{}
		d := env.create("D", rec)
		startAndWait(x)
		startAndWait(y)
		startAndWait(d)

		_, err := d.FollowStatusChangesByName([]string{"X", "Y"})
		Expect(err).NotTo(HaveOccurred())

		setStatus(x, lifecycle.StatusUp)
		setStatus(y, lifecycle.StatusUp)
		Eventually(rec.registrationStatuses).Should(HaveLen(1))

		// ERROR is not UP, so this is a flip to DOWN.
		setStatus(x, lifecycle.StatusError)
		Eventually(rec.registrationStatuses).Should(HaveLen(2))

		setStatus(x, lifecycle.StatusDown)
		setStatus(y, lifecycle.StatusDown)
		Consistently(rec.registrationStatuses, 50*time.Millisecond).Should(Equal([]lifecycle.Status{
			lifecycle.StatusUp,
			lifecycle.StatusDown,
		}))
	})

	It("reports UP right away when the upstreams already are", func() {
		up := env.create("ready", &recorder{})
		startAndWait(up)
		setStatus(up, lifecycle.StatusUp)

		rec := &recorder{}
		d := env.create("late-follower", rec)
		startAndWait(d)

		reg, err := d.FollowStatusChangesByName([]string{"ready"})
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.Status()).To(Equal(lifecycle.StatusUp))

		Eventually(rec.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp}))
		Consistently(rec.registrationStatuses, 50*time.Millisecond).Should(HaveLen(1))
	})

	It("keeps notifying one follower after the other closed", func() {
		x := env.create("shared", &recorder{})
		rec1 := &recorder{}
		rec2 := &recorder{}
		d1 := env.create("follower-1", rec1)
		d2 := env.create("follower-2", rec2)
		startAndWait(x)
		startAndWait(d1)
		startAndWait(d2)

		r1, err := d1.FollowStatusChangesByName([]string{"shared"})
		Expect(err).NotTo(HaveOccurred())
		r2, err := d2.FollowStatusChangesByName([]string{"shared"})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() int { return x.Info().Dependents }).Should(Equal(2))

		Expect(r1.Close()).To(Succeed())
		Expect(r1.Close()).To(Succeed())
		Expect(r1.IsClosed()).To(BeTrue())
		Eventually(func() int { return x.Info().Dependents }).Should(Equal(1))

		setStatus(x, lifecycle.StatusUp)
		Eventually(rec2.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp}))
		Consistently(rec1.registrationStatuses, 50*time.Millisecond).Should(BeEmpty())

		Expect(r2.Close()).To(Succeed())
		Eventually(func() int { return x.Info().Dependents }).Should(Equal(0))
		Eventually(func() int { return d2.Info().Registrations }).Should(Equal(0))
	})

	It("survives a cyclic follow graph", func() {
		upOnStart := func(e lifecycle.Event, c *lifecycle.Coordinator) error {
			if isStart(e) {
				c.UpdateStatus(lifecycle.StatusUp, "started")
			}

			return nil
		}
		aRec := &recorder{onEvent: upOnStart}
		bRec := &recorder{onEvent: upOnStart}
		a := env.create("cycle-a", aRec)
		b := env.create("cycle-b", bRec)

		a.Start()
		b.Start()
		Eventually(a.Status).Should(Equal(lifecycle.StatusUp))
		Eventually(b.Status).Should(Equal(lifecycle.StatusUp))

		_, err := a.FollowStatusChangesByName([]string{"cycle-b"})
		Expect(err).NotTo(HaveOccurred())
		_, err = b.FollowStatusChangesByName([]string{"cycle-a"})
		Expect(err).NotTo(HaveOccurred())

		Eventually(aRec.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp}))
		Eventually(bRec.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp}))
		Eventually(func() int { return a.Info().Dependents }).Should(Equal(1))
		Eventually(func() int { return b.Info().Dependents }).Should(Equal(1))

		b.Stop()
		Eventually(aRec.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp, lifecycle.StatusDown}))

		b.Start()
		Eventually(aRec.registrationStatuses).Should(HaveLen(3))
		Consistently(bRec.registrationStatuses, 50*time.Millisecond).Should(HaveLen(1))
	})

	It("supports a coordinator following itself", func() {
		rec := &recorder{}
		c := env.create("narcissus", rec)
		startAndWait(c)

		_, err := c.FollowStatusChangesByName([]string{"narcissus", "narcissus"})
		Expect(err).NotTo(HaveOccurred())

		setStatus(c, lifecycle.StatusUp)
		Eventually(rec.registrationStatuses).Should(Equal([]lifecycle.Status{lifecycle.StatusUp}))
		Expect(c.Info().Dependents).To(Equal(1))
	})

	It("drops status changes of a closed registration", func() {
		up := env.create("flapping", &recorder{})
		rec := &recorder{}
		d := env.create("watcher", rec)
		startAndWait(up)
		startAndWait(d)

		reg, err := d.FollowStatusChangesByName([]string{"flapping"})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() int { return up.Info().Dependents }).Should(Equal(1))

		Expect(reg.Close()).To(Succeed())
		setStatus(up, lifecycle.StatusUp)

		Consistently(rec.registrationStatuses, 50*time.Millisecond).Should(BeEmpty())
	})
})
