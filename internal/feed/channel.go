package feed

import (
	"context"
	"fmt"
	"sync"

	"cc-wager-escrow-go/internal/models"
)

// ChannelFeed is an in-process feed. Publish blocks until every current subscriber
// of the account has the event, the subscriber goes away, or the context ends.
type ChannelFeed struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscription]struct{}
	buffer      int
}

type subscription struct {
	ch      chan models.GameEvent
	done    chan struct{}
	sending sync.WaitGroup
}

// close stops new sends, waits out the ones in flight, then closes the channel.
// Only the caller that removed the subscription from the feed may close it.
func (s *subscription) close() {
	close(s.done)
	s.sending.Wait()
	close(s.ch)
}

func NewChannelFeed(buffer int) *ChannelFeed {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelFeed{
		subscribers: make(map[string]map[*subscription]struct{}),
		buffer:      buffer,
	}
}

func (f *ChannelFeed) Subscribe(ctx context.Context, accountId string) (<-chan models.GameEvent, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account id cannot be empty")
	}
	sub := &subscription{
		ch:   make(chan models.GameEvent, f.buffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.subscribers[accountId] == nil {
		f.subscribers[accountId] = make(map[*subscription]struct{})
	}
	f.subscribers[accountId][sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
			return // disconnected
		}
		if f.remove(accountId, sub) {
			sub.close()
		}
	}()
	return sub.ch, nil
}

func (f *ChannelFeed) remove(accountId string, sub *subscription) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[accountId][sub]; !ok {
		return false
	}
	delete(f.subscribers[accountId], sub)
	if len(f.subscribers[accountId]) == 0 {
		delete(f.subscribers, accountId)
	}
	return true
}

// Publish delivers event to the subscribers of event.AccountId. Returns the number reached.
func (f *ChannelFeed) Publish(ctx context.Context, event models.GameEvent) (int, error) {
	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.subscribers[event.AccountId]))
	for sub := range f.subscribers[event.AccountId] {
		sub.sending.Add(1)
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	delivered := 0
	var err error
	for _, sub := range subs {
		if err == nil {
			select {
			case sub.ch <- event:
				delivered++
			case <-sub.done:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		sub.sending.Done()
	}
	return delivered, err
}

// Disconnect closes every subscription for the account, as a dropped connection would.
func (f *ChannelFeed) Disconnect(accountId string) {
	f.mu.Lock()
	subs := f.subscribers[accountId]
	delete(f.subscribers, accountId)
	f.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}
