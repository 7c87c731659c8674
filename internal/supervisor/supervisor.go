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

package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cc-wager-escrow-go/internal/models"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// ExpireFunc is invoked once for a challenge whose deadline passed before a start signal.
type ExpireFunc func(ctx context.Context, challenge models.PendingChallenge)

type tracked struct {
	challenge models.PendingChallenge
	timer     *time.Timer
}

// Supervisor tracks outstanding challenges and fires ExpireFunc when one is never started.
// It decides nothing about money; the expiry handler's own idempotence settles races
// with a start signal that arrives at the deadline.
type Supervisor struct {
	timeout  time.Duration
	onExpire ExpireFunc
	pending  *xsync.Map[string, *tracked]

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func New(timeout time.Duration, onExpire ExpireFunc) *Supervisor {
	return &Supervisor{
		timeout:  timeout,
		onExpire: onExpire,
		pending:  xsync.NewMap[string, *tracked](),
	}
}

// Timeout is the default time a challenge may wait for a start signal.
func (s *Supervisor) Timeout() time.Duration {
	return s.timeout
}

// Arm starts the deadline for challenge. A zero Deadline means now + timeout.
func (s *Supervisor) Arm(challenge models.PendingChallenge) error {
	if challenge.WagerId == "" {
		return fmt.Errorf("challenge requires a wager id")
	}

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return fmt.Errorf("supervisor is stopped")
	}

	if challenge.Deadline.IsZero() {
		challenge.Deadline = time.Now().Add(s.timeout)
	}
	wagerId := challenge.WagerId

	armed := false
	s.pending.Compute(wagerId, func(current *tracked, loaded bool) (*tracked, xsync.ComputeOp) {
		if loaded {
			return current, xsync.CancelOp
		}
		armed = true
		return &tracked{
			challenge: challenge,
			timer:     time.AfterFunc(time.Until(challenge.Deadline), func() { s.expire(wagerId) }),
		}, xsync.UpdateOp
	})
	if !armed {
		return fmt.Errorf("challenge for wager %s is already armed", wagerId)
	}

	zap.L().Info("Challenge armed",
		zap.String("wager_id", wagerId),
		zap.String("challenger_id", challenge.ChallengerId),
		zap.String("opponent_name", challenge.OpponentName),
		zap.Time("deadline", challenge.Deadline))
	return nil
}

// MarkStarted cancels the deadline because the game began. Reports whether a challenge was pending.
func (s *Supervisor) MarkStarted(wagerId string) bool {
	entry, ok := s.pending.LoadAndDelete(wagerId)
	if !ok {
		return false
	}
	entry.timer.Stop()
	zap.L().Info("Challenge started before deadline", zap.String("wager_id", wagerId))
	return true
}

// Drop forgets a challenge without firing it.
func (s *Supervisor) Drop(wagerId string) {
	if entry, ok := s.pending.LoadAndDelete(wagerId); ok {
		entry.timer.Stop()
		zap.L().Debug("Challenge dropped", zap.String("wager_id", wagerId))
	}
}

func (s *Supervisor) Get(wagerId string) (models.PendingChallenge, bool) {
	entry, ok := s.pending.Load(wagerId)
	if !ok {
		return models.PendingChallenge{}, false
	}
	return entry.challenge, true
}

// Pending lists the challenges still waiting for a start signal.
func (s *Supervisor) Pending() []models.PendingChallenge {
	var out []models.PendingChallenge
	s.pending.Range(func(_ string, entry *tracked) bool {
		out = append(out, entry.challenge)
		return true
	})
	return out
}

// Stop cancels every outstanding deadline and waits for expirations already running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.pending.Range(func(wagerId string, entry *tracked) bool {
		entry.timer.Stop()
		s.pending.Delete(wagerId)
		return true
	})
	s.wg.Wait()
	zap.L().Info("Challenge supervisor stopped")
}

func (s *Supervisor) expire(wagerId string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	entry, ok := s.pending.LoadAndDelete(wagerId)
	if !ok || entry.challenge.Started {
		return
	}

	zap.L().Warn("Challenge deadline passed without a start signal",
		zap.String("wager_id", wagerId),
		zap.String("challenger_id", entry.challenge.ChallengerId))

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Challenge expiry handler panicked", zap.String("wager_id", wagerId), zap.Any("panic", r))
		}
	}()
	s.onExpire(context.Background(), entry.challenge)
}
