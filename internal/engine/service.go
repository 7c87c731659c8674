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

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cc-wager-escrow-go/internal/escrow"
	"cc-wager-escrow-go/internal/matchmaking"
	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/registry"
	"cc-wager-escrow-go/internal/resolution"
	"cc-wager-escrow-go/internal/store"
	"cc-wager-escrow-go/internal/supervisor"

	"go.uber.org/zap"
)

// InvitationIssuer sends a challenge on the external game server.
type InvitationIssuer interface {
	IssueChallenge(ctx context.Context, fromAccountId, toDisplayName string, terms models.Terms) error
}

type Config struct {
	ChallengeTimeout  time.Duration
	InvitationTimeout time.Duration
	FetchTimeout      time.Duration
	Rewards           models.RewardTable
}

// JoinResult reports whether a queue join produced a match.
type JoinResult struct {
	Matched bool
	WagerId string
}

// Service is the entry point used by request handlers and the event listener.
type Service struct {
	store      store.LedgerStore
	directory  store.Directory
	escrow     *escrow.Engine
	registry   *registry.Registry
	queue      *matchmaking.Queue
	supervisor *supervisor.Supervisor
	machine    *resolution.Machine
	issuer     InvitationIssuer
	cfg        Config
}

func NewService(
	ledger store.LedgerStore,
	directory store.Directory,
	issuer InvitationIssuer,
	fetcher resolution.OutcomeFetcher,
	cfg Config,
) *Service {
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 2 * time.Minute
	}
	if cfg.InvitationTimeout <= 0 {
		cfg.InvitationTimeout = 10 * time.Second
	}

	s := &Service{
		store:     ledger,
		directory: directory,
		escrow:    escrow.NewEngine(ledger),
		registry:  registry.New(),
		queue:     matchmaking.NewQueue(),
		issuer:    issuer,
		cfg:       cfg,
	}
	s.supervisor = supervisor.New(cfg.ChallengeTimeout, s.expireChallenge)
	s.machine = resolution.NewMachine(ledger, directory, s.escrow, s.registry, s.supervisor, fetcher, resolution.Config{
		Rewards:      cfg.Rewards,
		FetchTimeout: cfg.FetchTimeout,
	})
	return s
}

// Stop cancels outstanding challenge deadlines.
func (s *Service) Stop() {
	s.supervisor.Stop()
}

func (s *Service) Registry() *registry.Registry {
	return s.registry
}

func (s *Service) Supervisor() *supervisor.Supervisor {
	return s.supervisor
}

func (s *Service) Escrow() *escrow.Engine {
	return s.escrow
}

// CreateDirectWager holds the account's stake and registers the wager as pending.
func (s *Service) CreateDirectWager(ctx context.Context, accountId string, stake int64) (string, error) {
	if _, err := s.directory.GetAccount(ctx, accountId); err != nil {
		return "", fmt.Errorf("failed to load account %s: %w", accountId, err)
	}
	if err := s.ensureIdle(accountId); err != nil {
		return "", err
	}

	wager, err := s.escrow.OpenWager(ctx, escrow.OpenParams{
		StakeCC:        stake,
		WhiteAccountId: accountId,
		Holders:        []string{accountId},
	})
	if err != nil {
		return "", err
	}

	if err := s.registry.Register(accountId, wager.Id); err != nil {
		s.unwind(ctx, wager.Id, "busy:"+wager.Id)
		return "", err
	}

	zap.L().Info("Direct wager created",
		zap.String("wager_id", wager.Id),
		zap.String("account_id", accountId),
		zap.Int64("stake", stake))
	return wager.Id, nil
}

// CreateChallenge holds the challenger's stake, arms the deadline and invites the opponent.
// A failed invitation refunds the stake before returning ErrInvitationFailed.
func (s *Service) CreateChallenge(ctx context.Context, challengerId, opponentName string, stake int64, terms models.Terms) (string, error) {
	opponentName = strings.TrimSpace(opponentName)
	if opponentName == "" {
		return "", fmt.Errorf("opponent display name cannot be empty")
	}
	challenger, err := s.directory.GetAccount(ctx, challengerId)
	if err != nil {
		return "", fmt.Errorf("failed to load account %s: %w", challengerId, err)
	}
	if strings.EqualFold(challenger.DisplayName, opponentName) {
		return "", fmt.Errorf("account %s cannot challenge itself", challengerId)
	}
	if err := s.ensureIdle(challengerId); err != nil {
		return "", err
	}

	opponentId := ""
	opponent, err := s.directory.FindLinkedAccountByName(ctx, opponentName)
	switch {
	case err == nil:
		opponentId = opponent.Id
	case !errors.Is(err, store.ErrAccountNotFound):
		return "", err
	}

	deadline := s.deadline()
	wager, err := s.escrow.OpenWager(ctx, escrow.OpenParams{
		StakeCC:        stake,
		Terms:          terms,
		WhiteAccountId: challengerId,
		BlackAccountId: opponentId,
		Holders:        []string{challengerId},
		ExpiresAt:      deadline,
	})
	if err != nil {
		return "", err
	}

	if err := s.registry.Register(challengerId, wager.Id); err != nil {
		s.unwind(ctx, wager.Id, "busy:"+wager.Id)
		return "", err
	}

	challenge := models.PendingChallenge{
		WagerId:      wager.Id,
		ChallengerId: challengerId,
		OpponentId:   opponentId,
		OpponentName: opponentName,
		StakeCC:      stake,
		Terms:        terms,
		Deadline:     deadline,
	}
	if err := s.supervisor.Arm(challenge); err != nil {
		s.unwind(ctx, wager.Id, "invite-failed:"+wager.Id, challengerId)
		return "", err
	}

	if err := s.issue(ctx, challengerId, opponentName, terms); err != nil {
		s.unwind(ctx, wager.Id, "invite-failed:"+wager.Id, challengerId)
		return "", err
	}

	zap.L().Info("Challenge issued",
		zap.String("wager_id", wager.Id),
		zap.String("challenger_id", challengerId),
		zap.String("opponent_name", opponentName),
		zap.Int64("stake", stake))
	return wager.Id, nil
}

// JoinQueue queues the account or, when a partner is waiting, opens a wager between the two
// oldest tickets and invites them to play.
func (s *Service) JoinQueue(ctx context.Context, accountId string, stake int64, terms models.Terms) (JoinResult, error) {
	account, err := s.directory.GetAccount(ctx, accountId)
	if err != nil {
		return JoinResult{}, fmt.Errorf("failed to load account %s: %w", accountId, err)
	}
	if err := s.ensureIdle(accountId); err != nil {
		return JoinResult{}, err
	}
	balance, err := s.store.GetBalance(ctx, accountId)
	if err != nil {
		return JoinResult{}, err
	}
	if balance < stake {
		return JoinResult{}, &store.InsufficientFundsError{AccountId: accountId, Balance: balance, Required: stake}
	}

	pair, err := s.queue.Join(models.Ticket{
		AccountId:   accountId,
		DisplayName: account.DisplayName,
		StakeCC:     stake,
		Terms:       terms,
	})
	if err != nil {
		return JoinResult{}, err
	}
	if pair == nil {
		return JoinResult{}, nil
	}

	first, second := pair[0], pair[1]
	deadline := s.deadline()
	wager, err := s.escrow.OpenWager(ctx, escrow.OpenParams{
		StakeCC:        stake,
		Terms:          terms,
		WhiteAccountId: first.AccountId,
		BlackAccountId: second.AccountId,
		Holders:        []string{first.AccountId, second.AccountId},
		ExpiresAt:      deadline,
	})
	if err != nil {
		var funds *store.InsufficientFundsError
		if errors.As(err, &funds) {
			return s.requeueSurvivor(pair, funds.AccountId, accountId, err)
		}
		s.queue.Requeue(second)
		s.queue.Requeue(first)
		return JoinResult{}, err
	}

	for _, ticket := range pair {
		if err := s.registry.Register(ticket.AccountId, wager.Id); err != nil {
			s.unwind(ctx, wager.Id, "busy:"+wager.Id, first.AccountId, second.AccountId)
			return JoinResult{}, err
		}
	}

	if err := s.supervisor.Arm(models.PendingChallenge{
		WagerId:      wager.Id,
		ChallengerId: first.AccountId,
		OpponentId:   second.AccountId,
		OpponentName: second.DisplayName,
		StakeCC:      stake,
		Terms:        terms,
		Deadline:     deadline,
	}); err != nil {
		s.unwind(ctx, wager.Id, "invite-failed:"+wager.Id, first.AccountId, second.AccountId)
		return JoinResult{}, err
	}

	if err := s.issue(ctx, first.AccountId, second.DisplayName, terms); err != nil {
		s.unwind(ctx, wager.Id, "invite-failed:"+wager.Id, first.AccountId, second.AccountId)
		return JoinResult{}, err
	}

	zap.L().Info("Queue match created",
		zap.String("wager_id", wager.Id),
		zap.String("white_account_id", first.AccountId),
		zap.String("black_account_id", second.AccountId),
		zap.Int64("stake", stake))
	return JoinResult{Matched: true, WagerId: wager.Id}, nil
}

// requeueSurvivor puts the funded ticket back at the head of its queue. The caller only
// sees an error when it was the one that could not fund the stake.
func (s *Service) requeueSurvivor(pair *[2]models.Ticket, brokeId, callerId string, cause error) (JoinResult, error) {
	for _, ticket := range pair {
		if ticket.AccountId != brokeId {
			s.queue.Requeue(ticket)
		}
	}
	zap.L().Warn("Matched ticket could not fund its stake, dropped from queue",
		zap.String("account_id", brokeId),
		zap.Error(cause))
	if brokeId == callerId {
		return JoinResult{}, cause
	}
	return JoinResult{}, nil
}

// LeaveQueue removes the account from every matchmaking queue. Absent accounts are a no-op.
func (s *Service) LeaveQueue(_ context.Context, accountId string) error {
	s.queue.Leave(accountId)
	return nil
}

func (s *Service) OnStartSignal(ctx context.Context, accountId, externalGameId string) error {
	return s.machine.OnStartSignal(ctx, accountId, externalGameId)
}

func (s *Service) OnFinishSignal(ctx context.Context, accountId, externalGameId string, summary *models.OutcomeSummary) error {
	return s.machine.OnFinishSignal(ctx, accountId, externalGameId, summary)
}

// HandleEvent lets the service consume the reconciliation feed directly.
func (s *Service) HandleEvent(ctx context.Context, event models.GameEvent) error {
	return s.machine.HandleEvent(ctx, event)
}

// Restore rebuilds the registry and the challenge deadlines from the wagers still pending
// in the store. Deadlines that passed while the engine was down expire straight away.
func (s *Service) Restore(ctx context.Context) (int, error) {
	wagers, err := s.store.ListPendingWagers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending wagers: %w", err)
	}

	for i := range wagers {
		wager := &wagers[i]
		escrowRow, err := s.store.GetEscrow(ctx, wager.Id)
		if err != nil {
			return i, fmt.Errorf("failed to load escrow for %s: %w", wager.Id, err)
		}
		for _, accountId := range holdersOf(wager, escrowRow) {
			if err := s.registry.Register(accountId, wager.Id); err != nil {
				zap.L().Warn("Account already registered while restoring",
					zap.String("account_id", accountId),
					zap.String("wager_id", wager.Id),
					zap.Error(err))
			}
		}

		if wager.ExpiresAt.IsZero() {
			continue
		}
		err = s.supervisor.Arm(models.PendingChallenge{
			WagerId:      wager.Id,
			ChallengerId: wager.WhiteAccountId,
			OpponentId:   wager.BlackAccountId,
			StakeCC:      wager.StakeCC,
			Terms:        wager.Terms,
			Deadline:     wager.ExpiresAt,
		})
		if err != nil {
			return i, fmt.Errorf("failed to re-arm wager %s: %w", wager.Id, err)
		}
	}

	zap.L().Info("Pending wagers restored", zap.Int("count", len(wagers)))
	return len(wagers), nil
}

func holdersOf(wager *models.Wager, escrowRow *models.Escrow) []string {
	var holders []string
	if escrowRow != nil {
		for _, id := range []string{escrowRow.SideAAccountId, escrowRow.SideBAccountId} {
			if id != "" {
				holders = append(holders, id)
			}
		}
	}
	if len(holders) == 0 && wager.WhiteAccountId != "" {
		holders = append(holders, wager.WhiteAccountId)
	}
	return holders
}

func (s *Service) deadline() time.Time {
	return time.Now().Add(s.supervisor.Timeout()).UTC()
}

func (s *Service) ensureIdle(accountId string) error {
	if wagerId, ok := s.registry.Lookup(accountId); ok {
		return fmt.Errorf("account %s is waiting on wager %s: %w", accountId, wagerId, store.ErrAccountBusy)
	}
	return nil
}

func (s *Service) issue(ctx context.Context, fromAccountId, toDisplayName string, terms models.Terms) error {
	if s.issuer == nil {
		return fmt.Errorf("%w: no invitation issuer configured", store.ErrInvitationFailed)
	}
	issueCtx, cancel := context.WithTimeout(ctx, s.cfg.InvitationTimeout)
	defer cancel()

	if err := s.issuer.IssueChallenge(issueCtx, fromAccountId, toDisplayName, terms); err != nil {
		zap.L().Warn("Invitation failed, refunding stake",
			zap.String("from_account_id", fromAccountId),
			zap.String("to", toDisplayName),
			zap.Error(err))
		return fmt.Errorf("%w: %v", store.ErrInvitationFailed, err)
	}
	return nil
}

// unwind aborts a wager that never got going and clears its in-memory state.
func (s *Service) unwind(ctx context.Context, wagerId, ref string, accountIds ...string) {
	s.supervisor.Drop(wagerId)
	s.registry.ReleaseWager(wagerId, accountIds...)
	// The refund must land even if the caller's context is already done.
	if _, err := s.escrow.Cancel(context.WithoutCancel(ctx), wagerId, ref); err != nil {
		zap.L().Error("Failed to refund abandoned wager",
			zap.String("wager_id", wagerId),
			zap.String("ref", ref),
			zap.Error(err))
	}
}

func (s *Service) expireChallenge(ctx context.Context, challenge models.PendingChallenge) {
	cancelled, err := s.escrow.Cancel(ctx, challenge.WagerId, "timeout:"+challenge.WagerId)
	if err != nil {
		zap.L().Error("Failed to cancel expired challenge",
			zap.String("wager_id", challenge.WagerId),
			zap.Error(err))
		return
	}
	if cancelled {
		s.registry.ReleaseWager(challenge.WagerId, challenge.ChallengerId, challenge.OpponentId)
		zap.L().Info("Expired challenge refunded",
			zap.String("wager_id", challenge.WagerId),
			zap.String("challenger_id", challenge.ChallengerId))
	}
}
