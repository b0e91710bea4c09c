package registry_test

import (
	"context"
	"crypto/md5"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/registry"
)

func TestRegistry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Registry Suite")
}

var _ = Describe("MemBackend", func() {
	var (
		ctx context.Context
		b   *registry.MemBackend
	)

	BeforeEach(func() {
		ctx = context.Background()
		b = registry.NewMemBackend()
	})

	It("selects the oldest new action first", func() {
		older := b.Submit(registry.Action{Title: "old", Timestamp: time.Unix(0, 0)})
		_ = b.Submit(registry.Action{Title: "new", Timestamp: time.Unix(100, 0)})

		a, err := b.NextNew(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.ID).To(Equal(older))
		Expect(a.Status).To(Equal(registry.StatusRun))
	})

	It("skips write-requesting actions while the write slot is occupied", func() {
		b.Submit(registry.Action{Title: "write", WriteRequest: true, Timestamp: time.Unix(0, 0)})
		readID := b.Submit(registry.Action{Title: "read", WriteRequest: false, Timestamp: time.Unix(1, 0)})

		a, err := b.NextNew(ctx, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.ID).To(Equal(readID))
	})

	It("returns nil, nil when there is nothing new", func() {
		a, err := b.NextNew(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(BeNil())
	})

	It("authorizes by exact title and checksum match, with userID 0 as wildcard", func() {
		sum := md5.Sum([]byte("payload-bytes"))
		b.Authorize(registry.AuthEntry{Title: "detox", Checksum: sum, UserID: 0})

		ok, err := b.IsAuthorized(ctx, "detox", sum, 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = b.IsAuthorized(ctx, "detox", sum, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		otherSum := md5.Sum([]byte("different-bytes"))
		ok, err = b.IsAuthorized(ctx, "detox", otherSum, 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("refuses a user-scoped authorization for a different user", func() {
		sum := md5.Sum([]byte("payload"))
		b.Authorize(registry.AuthEntry{Title: "detox", Checksum: sum, UserID: 1})

		ok, err := b.IsAuthorized(ctx, "detox", sum, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("handles an action row disappearing while it runs", func() {
		id := b.Submit(registry.Action{Title: "transient"})
		b.Delete(id)

		a, err := b.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(BeNil())
	})

	It("records an exit code alongside the terminal status", func() {
		id := b.Submit(registry.Action{Title: "job"})
		code := 3
		Expect(b.SetStatus(ctx, id, registry.StatusFailed, &code)).To(Succeed())

		a, err := b.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Status).To(Equal(registry.StatusFailed))
		Expect(a.ExitCode).To(Equal(3))
	})
})
