package iaf

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evplatform/eventplane/internal/config"
	apperrors "github.com/evplatform/eventplane/internal/errors"
)

var _ = Describe("Breaker", func() {
	cfg := config.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	}

	It("fails fast with CIRCUIT_OPEN after failure_threshold consecutive failures", func() {
		b := NewBreaker("conn-1", cfg)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			err := b.Call(ctx, func(ctx context.Context) error { return errors.New("boom") })
			Expect(err).To(HaveOccurred())
		}

		called := false
		err := b.Call(ctx, func(ctx context.Context) error { called = true; return nil })
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeCircuitOpen)).To(BeTrue())
		Expect(called).To(BeFalse())
	})

	It("requires success_threshold consecutive half-open successes to close", func() {
		b := NewBreaker("conn-2", cfg)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_ = b.Call(ctx, func(ctx context.Context) error { return errors.New("boom") })
		}
		Expect(b.State()).To(Equal("open"))

		time.Sleep(15 * time.Millisecond)

		// One success in half-open is not enough to close.
		err := b.Call(ctx, func(ctx context.Context) error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(b.State()).To(Equal("half-open"))

		// A second success reaches success_threshold and closes the breaker.
		err = b.Call(ctx, func(ctx context.Context) error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(b.State()).To(Equal("closed"))
	})

	It("reopens on a failure during the half-open probe", func() {
		b := NewBreaker("conn-3", cfg)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_ = b.Call(ctx, func(ctx context.Context) error { return errors.New("boom") })
		}
		time.Sleep(15 * time.Millisecond)

		err := b.Call(ctx, func(ctx context.Context) error { return errors.New("still broken") })
		Expect(err).To(HaveOccurred())
		Expect(b.State()).To(Equal("open"))
	})
})

var _ = Describe("Manager", func() {
	It("returns the same breaker instance for repeated Get calls on one connection", func() {
		m := NewManager(config.CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Second})
		b1 := m.Get("conn-a")
		b2 := m.Get("conn-a")
		Expect(b1).To(BeIdenticalTo(b2))
	})

	It("isolates breaker state per connection", func() {
		m := NewManager(config.CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 2, Timeout: time.Second})
		ctx := context.Background()

		a := m.Get("conn-a")
		_ = a.Call(ctx, func(ctx context.Context) error { return errors.New("boom") })
		_ = a.Call(ctx, func(ctx context.Context) error { return errors.New("boom") })
		Expect(a.State()).To(Equal("open"))

		b := m.Get("conn-b")
		Expect(b.State()).To(Equal("closed"))
	})
})
