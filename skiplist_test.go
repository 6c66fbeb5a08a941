package kvtable_test

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bsm/kvtable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("SkipList", func() {
	var subject *kvtable.SkipList

	BeforeEach(func() {
		subject = kvtable.NewSkipList(kvtable.Bytewise, kvtable.NewArena())
	})

	It("should start empty", func() {
		Expect(subject.Contains([]byte("x"))).To(BeFalse())

		iter := subject.Iterator()
		Expect(iter.Valid()).To(BeFalse())
		iter.SeekToFirst()
		Expect(iter.Valid()).To(BeFalse())
		iter.SeekToLast()
		Expect(iter.Valid()).To(BeFalse())
		iter.Seek([]byte("x"))
		Expect(iter.Valid()).To(BeFalse())
	})

	It("should store keys in order", func() {
		for _, k := range []string{"3", "1", "4", "5", "9", "2", "6"} {
			subject.Insert([]byte(k))
		}

		var keys []string
		iter := subject.Iterator()
		for iter.SeekToFirst(); iter.Valid(); iter.Next() {
			keys = append(keys, string(iter.Key()))
		}
		Expect(keys).To(Equal([]string{"1", "2", "3", "4", "5", "6", "9"}))

		Expect(subject.Contains([]byte("4"))).To(BeTrue())
		Expect(subject.Contains([]byte("7"))).To(BeFalse())
	})

	It("should panic on duplicate inserts", func() {
		subject.Insert([]byte("dup"))
		Expect(func() { subject.Insert([]byte("dup")) }).To(Panic())
	})

	It("should seek", func() {
		for i := 0; i < 100; i += 2 {
			subject.Insert([]byte(fmt.Sprintf("%04d", i)))
		}

		iter := subject.Iterator()
		iter.Seek([]byte("0031"))
		Expect(iter.Valid()).To(BeTrue())
		Expect(string(iter.Key())).To(Equal("0032"))

		iter.Seek([]byte("0032"))
		Expect(string(iter.Key())).To(Equal("0032"))

		iter.Seek([]byte("0000"))
		Expect(string(iter.Key())).To(Equal("0000"))

		iter.Seek([]byte("0099"))
		Expect(iter.Valid()).To(BeFalse())
	})

	It("should iterate backwards", func() {
		for _, k := range []string{"a", "b", "c"} {
			subject.Insert([]byte(k))
		}

		iter := subject.Iterator()
		iter.SeekToLast()
		Expect(string(iter.Key())).To(Equal("c"))
		iter.Prev()
		Expect(string(iter.Key())).To(Equal("b"))
		iter.Prev()
		Expect(string(iter.Key())).To(Equal("a"))
		iter.Prev()
		Expect(iter.Valid()).To(BeFalse())
	})

	It("should support concurrent readers", func() {
		const numKeys = 2000
		const numReaders = 4

		var started, inserted atomic.Int64
		var wg sync.WaitGroup

		for r := 0; r < numReaders; r++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				for inserted.Load() < numKeys {
					// Every positive lookup must be a key the writer
					// has already begun to insert; the inserted
					// counter itself only moves after Insert returns.
					n := inserted.Load()
					probe := []byte(fmt.Sprintf("%05d", n))
					if subject.Contains(probe) {
						Expect(started.Load()).To(BeNumerically(">", n))
					}

					// Iteration must never observe a torn node: keys
					// are complete and strictly ascending.
					var prev []byte
					iter := subject.Iterator()
					for iter.SeekToFirst(); iter.Valid(); iter.Next() {
						key := iter.Key()
						Expect(key).To(HaveLen(5))
						if prev != nil {
							Expect(string(prev) < string(key)).To(BeTrue())
						}
						prev = key
					}
				}
			}()
		}

		for i := 0; i < numKeys; i++ {
			started.Store(int64(i + 1))
			subject.Insert([]byte(fmt.Sprintf("%05d", i)))
			inserted.Store(int64(i + 1))
		}
		wg.Wait()

		for i := 0; i < numKeys; i++ {
			Expect(subject.Contains([]byte(fmt.Sprintf("%05d", i)))).To(BeTrue())
		}
	})
})
