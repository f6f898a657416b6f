package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// BroadcastJob represents one broadcast-message request as stored in broadcast_jobs
type BroadcastJob struct {
	JobID           string        `db:"job_id"`
	Status          JobStatus     `db:"status"`
	Message         string        `db:"message"`
	MembersFilter   MembersFilter `db:"members_filter"`
	MonthsFilter    string        `db:"months_filter"` // JSON array of YYYY-MM-DD strings
	SearchFilter    string        `db:"search_filter"`
	TotalRecipients int           `db:"total_recipients"`
	ProcessedCount  int           `db:"processed_count"`
	SuccessCount    int           `db:"success_count"`
	FailedCount     int           `db:"failed_count"`
	Results         []byte        `db:"results"` // JSON array of MessageResult, written once
	ErrorMessage    *string       `db:"error_message"`
	StartedAt       *time.Time    `db:"started_at"`
	CompletedAt     *time.Time    `db:"completed_at"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

// Counters returns the job's progress counters
func (j *BroadcastJob) Counters() Counters {
	return Counters{
		Total:     j.TotalRecipients,
		Processed: j.ProcessedCount,
		Success:   j.SuccessCount,
		Failed:    j.FailedCount,
	}
}

// Months decodes monthsFilter. An empty or null filter yields no months.
func (j *BroadcastJob) Months() ([]time.Time, error) {
	return ParseMonths(j.MonthsFilter)
}

// DecodeResults returns the persisted per-recipient outcomes, if any
func (j *BroadcastJob) DecodeResults() ([]MessageResult, error) {
	if len(j.Results) == 0 {
		return nil, nil
	}
	var results []MessageResult
	if err := json.Unmarshal(j.Results, &results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return results, nil
}

// ParseMonths decodes a serialized month list. Duplicate months collapse to one.
func ParseMonths(raw string) ([]time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("%w: months filter is not a list: %v", ErrInvalidFilter, err)
	}

	months := make([]time.Time, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		t, err := ParseMonth(v)
		if err != nil {
			return nil, err
		}
		key := MonthKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		months = append(months, t)
	}
	return months, nil
}

// ParseMonth accepts YYYY-MM-DD or an RFC3339 timestamp and returns the date in UTC
func ParseMonth(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(MonthLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad month %q", ErrInvalidFilter, v)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// EncodeMonths serializes months the way they are stored on the job
func EncodeMonths(months []time.Time) (string, error) {
	values := make([]string, len(months))
	for i, m := range months {
		values[i] = MonthKey(m)
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MonthKey is the comparison key for a payment month
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// Counters holds a job's running totals
type Counters struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}

// Consistent reports whether the counters satisfy processed = success + failed <= total
func (c Counters) Consistent() bool {
	return c.Processed == c.Success+c.Failed && c.Processed <= c.Total
}

// MessageResult is the outcome of sending a broadcast to one recipient
type MessageResult struct {
	Name   string `json:"name"`
	Number string `json:"number"`
	Status bool   `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SortResults orders failures before successes, keeping the relative order otherwise
func SortResults(results []MessageResult) {
	slices.SortStableFunc(results, func(a, b MessageResult) int {
		switch {
		case a.Status == b.Status:
			return 0
		case !a.Status:
			return -1
		default:
			return 1
		}
	})
}

// JobMessage is the RabbitMQ wake-up published when a job is enqueued
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
