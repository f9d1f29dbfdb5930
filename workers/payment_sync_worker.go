// workers/payment_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"competition-portal-system/models"
)

// PaymentSyncClient mirrors entry-fee payments from the payments service
// into payment_mirrors, which feeds the admin dashboard stats.
type PaymentSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewPaymentSyncClient(db *gorm.DB) *PaymentSyncClient {
	baseURL := os.Getenv("PAYMENT_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("PAYMENT_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("PORTAL_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("PORTAL_SERVICE_TOKEN environment variable is required for payment sync")
	}

	return &PaymentSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *PaymentSyncClient) GetChangedPayments(ctx context.Context, since time.Time) ([]models.PaymentMirror, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/payments", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment service: %w", err)
	}
	defer func() {
		// Drain before closing so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Payments []models.PaymentMirror `json:"payments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode payment service response: %w", err)
	}

	return response.Payments, nil
}

// PollPayments periodically pulls payment changes and upserts them locally.
func PollPayments(ctx context.Context, client *PaymentSyncClient, pollInterval time.Duration) {
	log.Println("Starting payment polling (DB-backed)...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Payment polling stopped.")
			return
		case <-ticker.C:
			pollStart := time.Now().UTC()

			payments, err := client.GetChangedPayments(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling payments: %v", err)
				continue
			}

			count := len(payments)
			if count == 0 {
				continue
			}

			// Batch upsert using GORM's Create with OnConflict (one statement on Postgres)
			if err := client.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "payment_id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"user_id",
						"tournament_id",
						"paid_amount",
						"currency",
						"status",
						"paid_at",
						"created_at",
						"updated_at",
					}),
				},
			).Create(&payments).Error; err != nil {
				log.Printf("❌ Failed to upsert %d payment(s) into payment_mirrors: %v", count, err)
				// Do NOT update lastSyncTime on failure — retry same window next tick
				continue
			}

			// Advance to poll start, not now, to avoid time-skew gaps
			lastSyncTime = pollStart
			log.Printf("✅ Upserted %d payment(s) into payment_mirrors table.", count)
		}
	}
}
