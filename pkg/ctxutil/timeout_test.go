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

package ctxutil_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corda/corda-runtime-os-sub044/pkg/ctxutil"
)

func TestCtxutil(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ctxutil Suite")
}

var _ = Describe("RequireTime", func() {
	It("accepts a context without deadline", func() {
		Expect(ctxutil.RequireTime(context.Background(), time.Hour)).To(Succeed())
	})

	It("accepts a deadline far enough away", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		Expect(ctxutil.RequireTime(ctx, 100*time.Millisecond)).To(Succeed())
	})

	It("rejects a deadline that is too close", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()

		Expect(ctxutil.RequireTime(ctx, time.Second)).To(MatchError(ctxutil.ErrInsufficientTime))
	})

	It("rejects a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(ctxutil.RequireTime(ctx, 0)).To(MatchError(context.Canceled))
	})
})

var _ = Describe("Await", func() {
	It("returns once the channel is closed", func() {
		done := make(chan struct{})
		go func() {
			time.Sleep(10 * time.Millisecond)
			close(done)
		}()

		Expect(ctxutil.Await(context.Background(), done)).To(Succeed())
	})

	It("returns the context error on timeout", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		Expect(ctxutil.Await(ctx, make(chan struct{}))).To(MatchError(context.DeadlineExceeded))
	})

	It("prefers a closed channel over a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		close(done)

		Expect(ctxutil.Await(ctx, done)).To(Succeed())
	})
})
