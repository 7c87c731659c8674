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

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cc-wager-escrow-go/internal/models"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// Source is the read side the auditor checks.
type Source interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ReconcileBalance(ctx context.Context, accountId string) error
	ListHeldEscrows(ctx context.Context) ([]models.Escrow, error)
	SumEntriesByRef(ctx context.Context, kind models.EntryKind, ref string) (int64, error)
	Totals(ctx context.Context) (balances int64, held int64, err error)
}

// Finding is a single inconsistency.
type Finding struct {
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

// Report is the outcome of one audit run.
type Report struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Accounts       int           `json:"accounts"`
	Escrows        int           `json:"escrows"`
	TotalBalanceCC int64         `json:"total_balance"`
	TotalHeldCC    int64         `json:"total_held"`
	Findings       []Finding     `json:"findings,omitempty"`
}

// Clean reports whether the run found nothing wrong.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

// Auditor re-derives balances from the ledger and escrow holds from their stake entries.
type Auditor struct {
	src  Source
	pool pond.Pool
}

func NewAuditor(src Source, workers int) *Auditor {
	if workers <= 0 {
		workers = 4
	}
	return &Auditor{
		src:  src,
		pool: pond.NewPool(workers, pond.WithQueueSize(workers*16)),
	}
}

// Stop waits for in-flight checks and releases the workers.
func (a *Auditor) Stop() {
	a.pool.StopAndWait()
}

// Run checks every account balance and every held escrow.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC()}

	accounts, err := a.src.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	escrows, err := a.src.ListHeldEscrows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list held escrows: %w", err)
	}
	report.Accounts = len(accounts)
	report.Escrows = len(escrows)

	var mu sync.Mutex
	addFinding := func(subject, detail string) {
		mu.Lock()
		report.Findings = append(report.Findings, Finding{Subject: subject, Detail: detail})
		mu.Unlock()
	}

	group := a.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, account := range accounts {
		accountId := account.Id
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			if err := a.src.ReconcileBalance(groupCtx, accountId); err != nil {
				addFinding("account:"+accountId, err.Error())
			}
		})
	}

	for _, escrow := range escrows {
		escrow := escrow
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			held, err := a.src.SumEntriesByRef(groupCtx, models.EntryStakeHold, escrow.WagerId)
			if err != nil {
				addFinding("escrow:"+escrow.WagerId, err.Error())
				return
			}
			// stake holds are recorded as negative amounts
			if -held != escrow.Total() {
				addFinding("escrow:"+escrow.WagerId,
					fmt.Sprintf("hold mismatch: escrow=%d, ledger=%d", escrow.Total(), -held))
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, fmt.Errorf("audit interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.TotalBalanceCC, report.TotalHeldCC, err = a.src.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}
	report.Duration = time.Since(report.StartedAt)

	if report.Clean() {
		zap.L().Info("Audit passed",
			zap.Int("accounts", report.Accounts),
			zap.Int("escrows", report.Escrows),
			zap.Int64("total_balance", report.TotalBalanceCC),
			zap.Int64("total_held", report.TotalHeldCC),
			zap.Duration("duration", report.Duration))
	} else {
		zap.L().Error("Audit found inconsistencies",
			zap.Int("findings", len(report.Findings)),
			zap.Any("details", report.Findings))
	}
	return report, nil
}
