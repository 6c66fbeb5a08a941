package kvtable_test

import (
	"fmt"

	"github.com/bsm/kvtable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("BloomFilter", func() {
	subject := kvtable.NewBloomFilter(10)

	build := func(keys ...string) []byte {
		kbs := make([][]byte, len(keys))
		for i, k := range keys {
			kbs[i] = []byte(k)
		}
		return subject.AppendFilter(nil, kbs)
	}

	It("should have a name", func() {
		Expect(subject.Name()).To(Equal("kvtable.BuiltinBloomFilter"))
	})

	It("should match nothing when empty", func() {
		filter := build()
		Expect(filter).To(HaveLen(9)) // 64 bits minimum + k byte
		Expect(subject.KeyMayMatch([]byte("hello"), filter)).To(BeFalse())
		Expect(subject.KeyMayMatch([]byte(""), filter)).To(BeFalse())
	})

	It("should never yield false negatives", func() {
		keys := make([]string, 500)
		for i := range keys {
			keys[i] = fmt.Sprintf("key-%04d", i)
		}
		filter := build(keys...)

		for _, k := range keys {
			Expect(subject.KeyMayMatch([]byte(k), filter)).To(BeTrue(), "for %s", k)
		}
	})

	It("should keep the false positive rate low", func() {
		keys := make([]string, 1000)
		for i := range keys {
			keys[i] = fmt.Sprintf("key-%04d", i)
		}
		filter := build(keys...)

		hits := 0
		for i := 0; i < 10000; i++ {
			if subject.KeyMayMatch([]byte(fmt.Sprintf("other-%05d", i)), filter) {
				hits++
			}
		}
		Expect(hits).To(BeNumerically("<", 300), "false positive rate above 3%")
	})

	It("should treat unknown encodings as matches", func() {
		filter := append(build("a"), 42) // k > 30
		Expect(subject.KeyMayMatch([]byte("zzz"), filter[len(filter)-2:])).To(BeTrue())
	})
})
