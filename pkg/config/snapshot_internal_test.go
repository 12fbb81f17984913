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

package config

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Snapshot equality", func() {
	It("does not trust a matching hash alone", func() {
		a, err := NewSnapshot("db", map[string]any{"host": "a"})
		Expect(err).NotTo(HaveOccurred())
		b, err := NewSnapshot("db", map[string]any{"host": "b"})
		Expect(err).NotTo(HaveOccurred())

		// Two different values fingerprinted alike.
		b.hash = a.hash

		Expect(a.Equal(b)).To(BeFalse())
	})

	It("publishes a change whose hash collides with the current value", func() {
		next, err := NewSnapshot("db", map[string]any{"host": "b"})
		Expect(err).NotTo(HaveOccurred())
		current, err := NewSnapshot("db", map[string]any{"host": "a"})
		Expect(err).NotTo(HaveOccurred())
		current.hash = next.hash

		feed := NewMemoryFeed()
		feed.current["db"] = current

		var changes [][]string
		sub, err := feed.Subscribe(func(changed []string, _ map[string]Snapshot) {
			changes = append(changes, changed)
		})
		Expect(err).NotTo(HaveOccurred())
		defer sub.Close()

		Expect(feed.Set("db", map[string]any{"host": "b"})).To(Succeed())

		// The initial delivery, then the change.
		Expect(changes).To(Equal([][]string{{"db"}, {"db"}}))
		host, _ := feed.Current()["db"].Get("host")
		Expect(host).To(Equal("b"))
	})
})
