package worker_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/converse/api/worker"
	"github.com/papercomputeco/converse/pkg/eventstream"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.InvocationCompletedEvent
	err    error
	block  chan struct{}
	closed bool
}

func (p *recordingPublisher) PublishInvocation(_ context.Context, e *eventstream.InvocationCompletedEvent) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newEvent() *eventstream.InvocationCompletedEvent {
	return eventstream.NewInvocationCompletedEvent(
		eventstream.EventSource{Backend: "rest", Model: "test-model"},
		eventstream.InvocationMeta{Operation: "converse"},
		eventstream.InvocationOutcome{},
	)
}

var _ = Describe("Worker Pool", func() {
	It("requires a publisher", func() {
		_, err := worker.NewPool(&worker.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("publishes every enqueued event before Close returns", func() {
		pub := &recordingPublisher{}
		wp, err := worker.NewPool(&worker.Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())

		for range 10 {
			Expect(wp.Enqueue(worker.Job{Event: newEvent()})).To(BeTrue())
		}
		Expect(wp.Close()).To(Succeed())

		Expect(pub.count()).To(Equal(10))
		Expect(pub.closed).To(BeTrue())
	})

	It("drops jobs when the queue is full", func() {
		pub := &recordingPublisher{block: make(chan struct{})}
		wp, err := worker.NewPool(&worker.Config{Publisher: pub, NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		// The single worker takes the first job and blocks, the second fills
		// the queue; eventually a further job is rejected.
		Expect(wp.Enqueue(worker.Job{Event: newEvent()})).To(BeTrue())
		Eventually(func() bool {
			return wp.Enqueue(worker.Job{Event: newEvent()})
		}).Should(BeFalse())

		close(pub.block)
		Expect(wp.Close()).To(Succeed())
	})

	It("rejects nil events and enqueues after close", func() {
		pub := &recordingPublisher{}
		wp, err := worker.NewPool(&worker.Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.Enqueue(worker.Job{})).To(BeFalse())
		Expect(wp.Close()).To(Succeed())
		Expect(wp.Close()).To(Succeed())
		Expect(wp.Enqueue(worker.Job{Event: newEvent()})).To(BeFalse())
	})

	It("keeps going after a publish failure", func() {
		pub := &recordingPublisher{err: errors.New("broker down")}
		wp, err := worker.NewPool(&worker.Config{Publisher: pub, NumWorkers: 1})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.Enqueue(worker.Job{Event: newEvent()})).To(BeTrue())
		Expect(wp.Enqueue(worker.Job{Event: newEvent()})).To(BeTrue())
		Expect(wp.Close()).To(Succeed())
		Expect(pub.count()).To(BeZero())
	})
})
