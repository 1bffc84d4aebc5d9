// Package syncjobs binds queue job types to the sync services.
package syncjobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/sellersync/internal/application/ordersync"
)

// HistoricalPayload is the payload of an orders_historical job.
type HistoricalPayload = ordersync.Request

// IncrementalPayload is the payload of an orders_incremental job.
type IncrementalPayload struct {
	LookbackHours int `json:"lookback_hours,omitempty"`
}

// FinancesPayload is the payload of a financial_events job. An explicit
// range wins over Days.
type FinancesPayload struct {
	PostedAfter  *time.Time `json:"posted_after,omitempty"`
	PostedBefore *time.Time `json:"posted_before,omitempty"`
	Days         int        `json:"days,omitempty"`
	WindowDays   int        `json:"window_days,omitempty"`
}

// ReturnsPayload is the payload of a returns job.
type ReturnsPayload struct {
	LookbackDays int `json:"lookback_days,omitempty"`
}

// DaysPayload is the payload of the profit_rebuild and profit_export jobs.
type DaysPayload struct {
	Days int `json:"days,omitempty"`
}

// PurgePayload is the payload of an fba_shipments_purge job.
type PurgePayload struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// DefaultFinanceDays is the range reconciled when a job names none.
const DefaultFinanceDays = 14

// decode unmarshals a job payload. An empty payload leaves v untouched.
func decode(payload string, v any) error {
	if payload == "" || payload == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("invalid job payload: %w", err)
	}
	return nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
