package events

import (
	"context"
	"sync"
)

// CapturePublisher records published events in memory for tests.
type CapturePublisher struct {
	mu     sync.Mutex
	events []*OutcomeEvent
}

func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

func (p *CapturePublisher) PublishOutcome(ctx context.Context, event *OutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *event
	p.events = append(p.events, &cp)
	return nil
}

func (p *CapturePublisher) Close() {}

// Events returns a copy of everything published so far.
func (p *CapturePublisher) Events() []*OutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*OutcomeEvent, len(p.events))
	copy(out, p.events)
	return out
}
