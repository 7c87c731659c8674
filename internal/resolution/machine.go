package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cc-wager-escrow-go/internal/escrow"
	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/registry"
	"cc-wager-escrow-go/internal/store"
	"cc-wager-escrow-go/internal/supervisor"

	"go.uber.org/zap"
)

// OutcomeFetcher retrieves the summary of a finished game from the game server.
type OutcomeFetcher interface {
	FetchOutcome(ctx context.Context, externalGameId string) (*models.OutcomeSummary, error)
}

type Config struct {
	Rewards      models.RewardTable
	FetchTimeout time.Duration
}

// Machine drives wagers from pending through linked to settled in response to
// start and finish signals. Every signal may be delivered more than once.
type Machine struct {
	store      store.LedgerStore
	directory  store.Directory
	escrow     *escrow.Engine
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	fetcher    OutcomeFetcher
	cfg        Config
}

func NewMachine(
	ledger store.LedgerStore,
	directory store.Directory,
	engine *escrow.Engine,
	reg *registry.Registry,
	sup *supervisor.Supervisor,
	fetcher OutcomeFetcher,
	cfg Config,
) *Machine {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Machine{
		store:      ledger,
		directory:  directory,
		escrow:     engine,
		registry:   reg,
		supervisor: sup,
		fetcher:    fetcher,
		cfg:        cfg,
	}
}

// HandleEvent routes a feed delivery to the matching signal.
func (m *Machine) HandleEvent(ctx context.Context, event models.GameEvent) error {
	switch event.Type {
	case models.EventStart:
		return m.OnStartSignal(ctx, event.AccountId, event.ExternalGameId)
	case models.EventFinish:
		return m.finish(ctx, event.AccountId, event.ExternalGameId, event.Outcome)
	}
	zap.L().Warn("Ignoring event of unknown type",
		zap.String("account_id", event.AccountId),
		zap.String("type", string(event.Type)))
	return nil
}

// OnStartSignal binds the account's pending wager to the external game and cancels its deadline.
func (m *Machine) OnStartSignal(ctx context.Context, accountId, externalGameId string) error {
	if externalGameId == "" {
		return fmt.Errorf("start signal for %s has no game id", accountId)
	}

	wagerId, ok := m.registry.Lookup(accountId)
	if !ok {
		zap.L().Debug("Start signal for account without pending wager",
			zap.String("account_id", accountId),
			zap.String("game_id", externalGameId))
		return nil
	}

	linked, err := m.store.LinkWager(ctx, wagerId, externalGameId)
	if err != nil {
		return fmt.Errorf("failed to link wager %s to game %s: %w", wagerId, externalGameId, err)
	}
	if !linked {
		wager, err := m.store.GetWager(ctx, wagerId)
		if err != nil {
			return err
		}
		if wager.ExternalGameId != externalGameId {
			zap.L().Warn("Start signal for wager that can no longer be linked",
				zap.String("wager_id", wagerId),
				zap.String("game_id", externalGameId),
				zap.String("state", string(wager.State)),
				zap.String("linked_game_id", wager.ExternalGameId))
		}
	}

	m.supervisor.MarkStarted(wagerId)
	return nil
}

// OnFinishSignal settles the wager behind a finished game. A nil summary is fetched
// from the game server. An indeterminate result on a staked wager settles nothing so
// a later delivery with better information can still resolve it.
func (m *Machine) OnFinishSignal(ctx context.Context, accountId, externalGameId string, summary *models.OutcomeSummary) error {
	if err := m.finish(ctx, accountId, externalGameId, summary); err != nil && !errors.Is(err, store.ErrOutcomeUndecided) {
		return err
	}
	return nil
}

// finish is OnFinishSignal that reports ErrOutcomeUndecided when the game's record
// is left open, so the feed can tell a settled delivery from one worth seeing again.
func (m *Machine) finish(ctx context.Context, accountId, externalGameId string, summary *models.OutcomeSummary) error {
	if externalGameId == "" {
		return fmt.Errorf("finish signal for %s has no game id", accountId)
	}

	if summary == nil {
		fetched, err := m.fetchOutcome(ctx, externalGameId)
		if err != nil {
			return err
		}
		summary = fetched
	}

	view, err := m.observe(ctx, accountId, summary)
	if err != nil {
		return err
	}

	wager, err := m.findWager(ctx, accountId, externalGameId, view)
	if err != nil {
		return err
	}

	logger := zap.L().With(
		zap.String("wager_id", wager.Id),
		zap.String("game_id", externalGameId),
		zap.String("account_id", accountId),
		zap.String("result", string(view.result)))

	if wager.StakeCC == 0 {
		if err := m.creditCasual(ctx, wager, accountId, externalGameId, view); err != nil {
			return err
		}
		logger.Info("Casual game rewarded")
		m.cleanup(wager, accountId, view.opponentId)
		if view.result == models.ResultIndeterminate {
			return undecided(externalGameId)
		}
		return nil
	}

	if wager.Terminal() {
		logger.Debug("Finish signal for settled wager, nothing to do")
		m.cleanup(wager, accountId, view.opponentId)
		return nil
	}

	params := escrow.ResolveParams{
		WagerId:        wager.Id,
		ExternalGameId: externalGameId,
		WhiteAccountId: view.whiteId,
		BlackAccountId: view.blackId,
	}
	switch view.result {
	case models.ResultAbort:
		params.Settlement = models.SettlementAbort
	case models.ResultDraw:
		params.Settlement = models.SettlementDraw
	case models.ResultWin:
		params.Settlement = models.SettlementDecisive
		params.WinnerAccountId = accountId
	case models.ResultLoss:
		params.Settlement = models.SettlementDecisive
		params.WinnerAccountId = view.opponentId
		if params.WinnerAccountId == "" {
			params.WinnerAccountId = otherParticipant(wager, accountId)
		}
	default:
		logger.Warn("Outcome is indeterminate, leaving wager unsettled",
			zap.String("status", summary.Status),
			zap.String("white", summary.WhiteName),
			zap.String("black", summary.BlackName))
		return undecided(externalGameId)
	}

	settled, err := m.escrow.Resolve(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to resolve wager %s: %w", wager.Id, err)
	}
	logger.Info("Staked wager resolved",
		zap.String("settlement", string(settled.Settlement)),
		zap.String("winner_account_id", settled.WinnerAccountId))

	m.cleanup(settled, accountId, view.opponentId)
	return nil
}

// view is one account's reading of an outcome summary.
type view struct {
	color      models.Color
	result     models.Result
	opponentId string
	whiteId    string
	blackId    string
}

func (m *Machine) observe(ctx context.Context, accountId string, summary *models.OutcomeSummary) (view, error) {
	v := view{result: models.ResultIndeterminate}

	account, err := m.directory.GetAccount(ctx, accountId)
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		zap.L().Warn("Finish signal for unknown account", zap.String("account_id", accountId))
	case err != nil:
		return v, err
	default:
		v.color = summary.ColorOf(account.DisplayName)
	}
	v.result = summary.ResultFor(v.color)

	if v.color == "" {
		return v, nil
	}

	opponentName := summary.NameOf(v.color.Opposite())
	if opponentName != "" {
		opponent, err := m.directory.FindLinkedAccountByName(ctx, opponentName)
		switch {
		case errors.Is(err, store.ErrAccountNotFound):
			zap.L().Debug("Opponent is not a linked account", zap.String("opponent_name", opponentName))
		case err != nil:
			return v, err
		default:
			v.opponentId = opponent.Id
		}
	}

	if v.color == models.White {
		v.whiteId, v.blackId = accountId, v.opponentId
	} else {
		v.whiteId, v.blackId = v.opponentId, accountId
	}
	return v, nil
}

// findWager locates the wager for a finished game: by game id, then through the
// registry, and finally by creating an unstaked record keyed by the game id.
func (m *Machine) findWager(ctx context.Context, accountId, externalGameId string, v view) (*models.Wager, error) {
	wager, err := m.store.GetWagerByExternalId(ctx, externalGameId)
	if err == nil {
		return wager, nil
	}
	if !errors.Is(err, store.ErrWagerNotFound) {
		return nil, err
	}

	for _, candidate := range []string{accountId, v.opponentId} {
		if candidate == "" {
			continue
		}
		wagerId, ok := m.registry.Lookup(candidate)
		if !ok {
			continue
		}
		linked, err := m.store.LinkWager(ctx, wagerId, externalGameId)
		if err != nil {
			return nil, err
		}
		if linked {
			m.supervisor.MarkStarted(wagerId)
			return m.store.GetWager(ctx, wagerId)
		}
	}

	var casual *models.Wager
	err = m.store.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetWagerByExternalId(ctx, externalGameId)
		if err == nil {
			casual = existing
			return nil
		}
		if !errors.Is(err, store.ErrWagerNotFound) {
			return err
		}
		casual = &models.Wager{
			StakeCC:        0,
			WhiteAccountId: v.whiteId,
			BlackAccountId: v.blackId,
			ExternalGameId: externalGameId,
			State:          models.WagerLinked,
		}
		return tx.CreateWager(ctx, casual)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record casual game %s: %w", externalGameId, err)
	}
	return casual, nil
}

// creditCasual pays the acting account's flat reward and settles the record once.
func (m *Machine) creditCasual(ctx context.Context, wager *models.Wager, accountId, externalGameId string, v view) error {
	reward := m.cfg.Rewards.For(v.result)
	return m.store.InTx(ctx, func(tx store.Tx) error {
		if reward > 0 {
			if _, _, err := tx.Record(ctx, store.RecordParams{
				AccountId: accountId,
				Kind:      models.EntryGain,
				Amount:    reward,
				Ref:       externalGameId,
			}); err != nil {
				return err
			}
		}

		current, err := tx.GetWager(ctx, wager.Id)
		if err != nil {
			return err
		}
		if current.Terminal() || v.result == models.ResultIndeterminate {
			return nil
		}

		settlement := models.SettlementDraw
		winner := ""
		switch v.result {
		case models.ResultAbort:
			settlement = models.SettlementAbort
		case models.ResultWin:
			settlement, winner = models.SettlementDecisive, accountId
		case models.ResultLoss:
			settlement, winner = models.SettlementDecisive, v.opponentId
		}
		if v.whiteId != "" || v.blackId != "" {
			white, black := v.whiteId, v.blackId
			if white == "" {
				white = current.WhiteAccountId
			}
			if black == "" {
				black = current.BlackAccountId
			}
			if err := tx.AssignColors(ctx, wager.Id, white, black); err != nil {
				return err
			}
		}
		return tx.SettleWager(ctx, store.SettleParams{
			WagerId:         wager.Id,
			ExternalGameId:  externalGameId,
			Settlement:      settlement,
			WinnerAccountId: winner,
			SettlementRef:   externalGameId,
		})
	})
}

func (m *Machine) fetchOutcome(ctx context.Context, externalGameId string) (*models.OutcomeSummary, error) {
	if m.fetcher == nil {
		return nil, fmt.Errorf("no outcome summary for game %s and no fetcher configured", externalGameId)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	summary, err := m.fetcher.FetchOutcome(fetchCtx, externalGameId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outcome for game %s: %w", externalGameId, err)
	}
	return summary, nil
}

func (m *Machine) cleanup(wager *models.Wager, accountIds ...string) {
	ids := append(accountIds, wager.WhiteAccountId, wager.BlackAccountId)
	m.registry.ReleaseWager(wager.Id, ids...)
	m.supervisor.Drop(wager.Id)
}

func undecided(externalGameId string) error {
	return fmt.Errorf("game %s: %w", externalGameId, store.ErrOutcomeUndecided)
}

func otherParticipant(wager *models.Wager, accountId string) string {
	for _, id := range wager.Participants() {
		if id != accountId {
			return id
		}
	}
	return ""
}
