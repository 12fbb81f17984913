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

package config_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/corda/corda-runtime-os-sub044/pkg/config"
	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
)

var _ = Describe("ReadService", func() {
	var (
		source  *config.MemoryFeed
		service *config.ReadService
		pool    *lifecycle.WorkerPool
	)

	BeforeEach(func() {
		log := zaptest.NewLogger(GinkgoT()).Sugar()
		pool = lifecycle.NewWorkerPool(2, log)
		factory := lifecycle.NewCoordinatorFactory(lifecycle.NewRegistry(), pool, nil, log)
		source = config.NewMemoryFeed()

		var err error
		service, err = config.NewReadService(factory, source, log)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		service.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(pool.Shutdown(ctx)).To(Succeed())
	})

	It("refuses to start without bootstrap configuration", func() {
		err := service.Start()
		Expect(err).To(MatchError(config.ErrNoBootstrapConfig))

		var ue *config.UsageError
		Expect(err).To(BeAssignableToTypeOf(ue))
	})

	It("refuses a second bootstrap", func() {
		Expect(service.Bootstrap(map[string]any{"bus": "localhost:9092"})).To(Succeed())
		Expect(service.Bootstrap(map[string]any{"bus": "other:9092"})).To(MatchError(config.ErrBootstrapAlreadySet))
	})

	It("refuses a duplicate named subscription until the first is closed", func() {
		log := &changeLog{}
		sub, err := service.SubscribeAs("crypto", log.handle)
		Expect(err).NotTo(HaveOccurred())

		_, err = service.Named("crypto").Subscribe(log.handle)
		Expect(err).To(MatchError(config.ErrDuplicateSubscription))

		Expect(sub.Close()).To(Succeed())
		_, err = service.SubscribeAs("crypto", log.handle)
		Expect(err).NotTo(HaveOccurred())
	})

	It("fans out the bootstrap and source configuration", func() {
		Expect(source.Set("db", map[string]any{"host": "localhost"})).To(Succeed())
		Expect(service.Bootstrap(map[string]any{"bus": "localhost:9092"})).To(Succeed())

		early := &changeLog{}
		_, err := service.Subscribe(early.handle)
		Expect(err).NotTo(HaveOccurred())

		Expect(service.Start()).To(Succeed())
		Eventually(service.Coordinator().Status).Should(Equal(lifecycle.StatusUp))

		Eventually(func() map[string]config.Snapshot { return early.Last() }).Should(SatisfyAll(
			HaveKey(config.BootstrapKey),
			HaveKey("db"),
		))

		late := &changeLog{}
		_, err = service.Subscribe(late.handle)
		Expect(err).NotTo(HaveOccurred())
		Eventually(late.Last).Should(HaveLen(2))

		n := len(early.Changes())
		Expect(source.Set("db", map[string]any{"host": "remote"})).To(Succeed())
		Eventually(func() int { return len(early.Changes()) }).Should(Equal(n + 1))
		Expect(early.Changes()[n]).To(Equal([]string{"db"}))

		host, _ := early.Last()["db"].Get("host")
		Expect(host).To(Equal("remote"))
	})

	It("stops delivering to closed subscriptions", func() {
		Expect(service.Bootstrap(map[string]any{})).To(Succeed())
		Expect(service.Start()).To(Succeed())
		Eventually(service.Coordinator().Status).Should(Equal(lifecycle.StatusUp))

		log := &changeLog{}
		sub, err := service.Subscribe(log.handle)
		Expect(err).NotTo(HaveOccurred())
		Eventually(log.Changes).Should(HaveLen(1))

		Expect(sub.Close()).To(Succeed())
		Expect(source.Set("db", map[string]any{"host": "localhost"})).To(Succeed())
		Consistently(log.Changes, 50*time.Millisecond).Should(HaveLen(1))
	})

	It("goes DOWN when stopped", func() {
		Expect(service.Bootstrap(map[string]any{})).To(Succeed())
		Expect(service.Start()).To(Succeed())
		Eventually(service.Coordinator().Status).Should(Equal(lifecycle.StatusUp))

		service.Stop()
		Eventually(service.Coordinator().Status).Should(Equal(lifecycle.StatusDown))
	})
})
