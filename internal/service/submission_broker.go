package service

import (
	"sync"

	"github.com/noah-isme/mockmate-judge/internal/dto"
)

type submissionBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.CodingSubmissionResponse]struct{}
}

func newSubmissionBroker() *submissionBroker {
	return &submissionBroker{
		subscribers: make(map[uint]map[chan dto.CodingSubmissionResponse]struct{}),
	}
}

func (b *submissionBroker) subscribe(id uint, ch chan dto.CodingSubmissionResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		b.subscribers[id] = make(map[chan dto.CodingSubmissionResponse]struct{})
	}
	b.subscribers[id][ch] = struct{}{}
}

func (b *submissionBroker) unsubscribe(id uint, ch chan dto.CodingSubmissionResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[id]; ok {
		if _, member := subscribers[ch]; !member {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, id)
		}
	}
}

func (b *submissionBroker) broadcast(submission dto.CodingSubmissionResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[submission.ID] {
		select {
		case ch <- submission:
		default:
		}
	}
}
