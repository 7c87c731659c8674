package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"cc-wager-escrow-go/internal/audit"
	"cc-wager-escrow-go/internal/common"
	"cc-wager-escrow-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	jsonFlag := flag.Bool("json", false, "Print the report as JSON")
	workersFlag := flag.Int("workers", 0, "Worker pool size (default: AUDIT_WORKERS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	workers := cfg.Audit.Workers
	if *workersFlag > 0 {
		workers = *workersFlag
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	auditor := audit.NewAuditor(dbService, workers)
	defer auditor.Stop()

	report, err := auditor.Run(ctx)
	if err != nil {
		logger.Fatal("Audit failed", zap.Error(err))
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatal("Failed to encode report", zap.Error(err))
		}
	} else {
		common.PrintHeader("LEDGER AUDIT", common.DefaultWidth)
		fmt.Printf("Accounts checked:  %d\n", report.Accounts)
		fmt.Printf("Escrows checked:   %d\n", report.Escrows)
		fmt.Printf("Total balances:    %s\n", common.FormatCC(report.TotalBalanceCC, false))
		fmt.Printf("Held in escrow:    %s\n", common.FormatCC(report.TotalHeldCC, false))
		for i, f := range report.Findings {
			fmt.Printf("%s %s: %s\n", common.BoxPrefix(i == len(report.Findings)-1), f.Subject, f.Detail)
		}
		common.PrintFooter(fmt.Sprintf("%d finding(s) in %s", len(report.Findings), report.Duration), common.DefaultWidth)
	}

	if !report.Clean() {
		loggerCleanup()
		os.Exit(1)
	}
}
