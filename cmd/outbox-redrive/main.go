// outbox-redrive moves DEAD payment outbox rows back to PENDING with a fresh
// retry budget, and releases PROCESSING rows whose lock went stale. Run it
// after a Pub/Sub outage long enough for rows to exhaust their attempts.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/outbox-redrive --dry-run=false --confirm=REDRIVE
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/models"
	"gorm.io/gorm"
)

func main() {
	expenseID := flag.Int("expense-id", 0, "Redrive only this expense's FAILED/DEAD rows")
	stuckAge := flag.Int("stuck-age-seconds", 300, "Release PROCESSING rows locked longer than this")
	dryRun := flag.Bool("dry-run", true, "Show affected row counts only (no writes)")
	confirm := flag.String("confirm", "", "Type REDRIVE to proceed when dry-run=false")
	flag.Parse()

	if !*dryRun && strings.TrimSpace(*confirm) != "REDRIVE" {
		fmt.Fprintln(os.Stderr, "set --confirm=REDRIVE to proceed")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if *expenseID > 0 {
		if *dryRun {
			printExpenseRows(ctx, db, *expenseID)
			return
		}
		status, err := models.RetryPaymentOutbox(ctx, *expenseID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				fmt.Fprintf(os.Stderr, "no retryable outbox rows for expense %d\n", *expenseID)
				os.Exit(2)
			}
			fmt.Fprintf(os.Stderr, "redrive failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Expense %d outbox row %d is now %s\n", *expenseID, status.RecordId, status.PublishStatus)
		return
	}

	if *dryRun {
		printTotals(ctx, db, *stuckAge)
		return
	}

	redriven, err := models.RedriveDeadPaymentOutbox(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redrive failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Redrove %d DEAD rows to PENDING\n", redriven)

	released, err := models.ReleaseStuckPaymentOutbox(ctx, time.Duration(*stuckAge)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stuck release failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Released %d stuck PROCESSING rows\n", released)
}

func printExpenseRows(ctx context.Context, db *gorm.DB, expenseID int) {
	var rows []models.PaymentOutboxRecord
	if err := db.WithContext(ctx).
		Where("expense_id = ?", expenseID).
		Order("id").
		Find(&rows).Error; err != nil {
		fmt.Fprintf(os.Stderr, "lookup failed: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Printf("No outbox rows for expense %d\n", expenseID)
		return
	}
	for _, r := range rows {
		lastErr := ""
		if r.LastPublishError != nil {
			lastErr = " lastError=" + *r.LastPublishError
		}
		fmt.Printf("row=%d status=%s attempts=%d%s\n", r.ID, r.PublishStatus, r.PublishAttempts, lastErr)
	}
}

func printTotals(ctx context.Context, db *gorm.DB, stuckAgeSeconds int) {
	var dead int64
	if err := db.WithContext(ctx).Model(&models.PaymentOutboxRecord{}).
		Where("publish_status = ?", models.OutboxPublishStatusDead).
		Count(&dead).Error; err != nil {
		fmt.Fprintf(os.Stderr, "count failed: %v\n", err)
		os.Exit(1)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(stuckAgeSeconds) * time.Second)
	var stuck int64
	if err := db.WithContext(ctx).Model(&models.PaymentOutboxRecord{}).
		Where("publish_status = ? AND locked_at IS NOT NULL AND locked_at < ?", models.OutboxPublishStatusProcessing, cutoff).
		Count(&stuck).Error; err != nil {
		fmt.Fprintf(os.Stderr, "count failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("DEAD rows: %d\n", dead)
	fmt.Printf("PROCESSING rows locked > %ds: %d\n", stuckAgeSeconds, stuck)
	fmt.Println("Re-run with --dry-run=false --confirm=REDRIVE to redrive them")
}
