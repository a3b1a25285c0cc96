package envelope

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DedupeStore", func() {
	var (
		mr     *miniredis.Miniredis
		client *redis.Client
		store  *DedupeStore
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store = NewDedupeStore(client, 24*time.Hour)
		ctx = context.Background()
	})

	AfterEach(func() {
		client.Close()
		mr.Close()
	})

	It("reports unseen signals as not seen", func() {
		seen, err := store.Seen(ctx, "tenant-a", "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())
	})

	It("reports a marked signal as seen", func() {
		Expect(store.MarkProcessed(ctx, "tenant-a", "sig-1")).To(Succeed())

		seen, err := store.Seen(ctx, "tenant-a", "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("scopes dedup by tenant", func() {
		Expect(store.MarkProcessed(ctx, "tenant-a", "sig-1")).To(Succeed())

		seen, err := store.Seen(ctx, "tenant-b", "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())
	})

	It("expires after the TTL window", func() {
		Expect(store.MarkProcessed(ctx, "tenant-a", "sig-1")).To(Succeed())
		mr.FastForward(25 * time.Hour)

		seen, err := store.Seen(ctx, "tenant-a", "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())
	})
})

var _ = Describe("SequenceTracker", func() {
	var (
		mr      *miniredis.Miniredis
		client  *redis.Client
		tracker *SequenceTracker
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		tracker = NewSequenceTracker(client)
		ctx = context.Background()
	})

	AfterEach(func() {
		client.Close()
		mr.Close()
	})

	It("does not flag the first sequence number as out of order", func() {
		outOfOrder, err := tracker.CheckAndAdvance(ctx, "prod-1", "pr_opened", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(outOfOrder).To(BeFalse())
	})

	It("flags a lower sequence number as out of order without advancing", func() {
		_, err := tracker.CheckAndAdvance(ctx, "prod-1", "pr_opened", 5)
		Expect(err).NotTo(HaveOccurred())

		outOfOrder, err := tracker.CheckAndAdvance(ctx, "prod-1", "pr_opened", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(outOfOrder).To(BeTrue())
	})

	It("advances on a higher sequence number", func() {
		_, err := tracker.CheckAndAdvance(ctx, "prod-1", "pr_opened", 5)
		Expect(err).NotTo(HaveOccurred())

		outOfOrder, err := tracker.CheckAndAdvance(ctx, "prod-1", "pr_opened", 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(outOfOrder).To(BeFalse())
	})
})
