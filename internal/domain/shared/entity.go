package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity provides the surrogate key and timestamps shared by locally
// owned records. Records keyed by vendor identifiers do not embed it.
type BaseEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// NewBaseEntity creates a new base entity with generated ID
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DateRange is a half-open [Start, End) interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange validates and builds a range.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if !start.Before(end) {
		return DateRange{}, NewDomainError("INVALID_RANGE", "range start must be before end")
	}
	return DateRange{Start: start, End: end}, nil
}

// Days returns the number of whole or partial days covered.
func (r DateRange) Days() int {
	d := r.End.Sub(r.Start)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Split partitions the range into consecutive windows of at most size.
func (r DateRange) Split(size time.Duration) []DateRange {
	if size <= 0 {
		return []DateRange{r}
	}
	var out []DateRange
	for start := r.Start; start.Before(r.End); start = start.Add(size) {
		end := start.Add(size)
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, DateRange{Start: start, End: end})
	}
	return out
}
