/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package matchmaking

import (
	"fmt"
	"strings"
	"time"

	"cc-wager-escrow-go/internal/models"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Queue pairs waiting accounts FIFO within a (time, increment, stake, rated) key.
// Every mutation of a key runs under that key's Compute, so join and leave never
// double-dequeue or lose a ticket.
type Queue struct {
	waiting *xsync.Map[models.QueueKey, []models.Ticket]
	now     func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		waiting: xsync.NewMap[models.QueueKey, []models.Ticket](),
		now:     time.Now,
	}
}

// Join appends the ticket, or leaves the queue untouched if the account is already
// waiting under the same key. Once two tickets are waiting the oldest pair is
// removed and returned.
func (q *Queue) Join(ticket models.Ticket) (*[2]models.Ticket, error) {
	ticket.AccountId = strings.TrimSpace(ticket.AccountId)
	if ticket.AccountId == "" {
		return nil, fmt.Errorf("ticket requires an account id")
	}
	if ticket.StakeCC < 0 {
		return nil, fmt.Errorf("stake cannot be negative, got %d", ticket.StakeCC)
	}
	if ticket.EnqueuedAt.IsZero() {
		ticket.EnqueuedAt = q.now().UTC()
	}

	key := ticket.Key()
	var pair *[2]models.Ticket
	q.waiting.Compute(key, func(tickets []models.Ticket, loaded bool) ([]models.Ticket, xsync.ComputeOp) {
		for _, waiting := range tickets {
			if waiting.AccountId == ticket.AccountId {
				return tickets, xsync.CancelOp
			}
		}
		next := append(append([]models.Ticket(nil), tickets...), ticket)
		if len(next) < 2 {
			return next, xsync.UpdateOp
		}
		pair = &[2]models.Ticket{next[0], next[1]}
		if len(next) == 2 {
			return nil, xsync.DeleteOp
		}
		return next[2:], xsync.UpdateOp
	})

	if pair != nil {
		zap.L().Info("Matchmaking pair found",
			zap.String("first_account_id", pair[0].AccountId),
			zap.String("second_account_id", pair[1].AccountId),
			zap.Int64("stake", ticket.StakeCC),
			zap.Int("time", key.TimeSeconds),
			zap.Int("increment", key.IncrementSeconds),
			zap.Bool("rated", key.Rated))
	} else {
		zap.L().Debug("Ticket queued",
			zap.String("account_id", ticket.AccountId),
			zap.Int64("stake", ticket.StakeCC))
	}
	return pair, nil
}

// Requeue puts a ticket back at the head of its queue, keeping its original position.
func (q *Queue) Requeue(ticket models.Ticket) {
	q.waiting.Compute(ticket.Key(), func(tickets []models.Ticket, loaded bool) ([]models.Ticket, xsync.ComputeOp) {
		for _, waiting := range tickets {
			if waiting.AccountId == ticket.AccountId {
				return tickets, xsync.CancelOp
			}
		}
		return append([]models.Ticket{ticket}, tickets...), xsync.UpdateOp
	})
}

// Leave removes the account from every queue. Returns the number of tickets removed.
func (q *Queue) Leave(accountId string) int {
	var keys []models.QueueKey
	q.waiting.Range(func(key models.QueueKey, tickets []models.Ticket) bool {
		for _, t := range tickets {
			if t.AccountId == accountId {
				keys = append(keys, key)
				break
			}
		}
		return true
	})

	removed := 0
	for _, key := range keys {
		q.waiting.Compute(key, func(tickets []models.Ticket, loaded bool) ([]models.Ticket, xsync.ComputeOp) {
			kept := make([]models.Ticket, 0, len(tickets))
			for _, t := range tickets {
				if t.AccountId == accountId {
					removed++
					continue
				}
				kept = append(kept, t)
			}
			if len(kept) == 0 {
				return nil, xsync.DeleteOp
			}
			return kept, xsync.UpdateOp
		})
	}

	if removed > 0 {
		zap.L().Info("Account left matchmaking", zap.String("account_id", accountId), zap.Int("tickets", removed))
	}
	return removed
}

// Waiting returns a copy of the tickets queued under key, oldest first.
func (q *Queue) Waiting(key models.QueueKey) []models.Ticket {
	tickets, _ := q.waiting.Load(key)
	return append([]models.Ticket(nil), tickets...)
}

// Size is the total number of queued tickets.
func (q *Queue) Size() int {
	total := 0
	q.waiting.Range(func(_ models.QueueKey, tickets []models.Ticket) bool {
		total += len(tickets)
		return true
	})
	return total
}
