package storage

import (
	"net/url"
	"testing"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

func TestParseEventFilter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     string
		wantErr   bool
		wantSince time.Time
		wantUntil time.Time
		wantKind  models.DetectorKind
		wantLimit int
	}{
		{name: "empty", query: ""},
		{name: "relative since", query: "since=90m", wantSince: now.Add(-90 * time.Minute)},
		{name: "absolute until", query: "until=2024-02-29T08:00:00Z", wantUntil: time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)},
		{name: "detector is case insensitive", query: "detector=Statistical", wantKind: models.DetectorStatistical},
		{name: "limit", query: "limit=25", wantLimit: 25},
		{name: "bad since", query: "since=yesterday", wantErr: true},
		{name: "bad detector", query: "detector=magic", wantErr: true},
		{name: "zero limit", query: "limit=0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("Failed to parse query: %v", err)
			}

			filter, err := ParseEventFilter(values.Get, now)
			if tt.wantErr {
				if err == nil {
					t.Error("Esperado erro, obtido nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to parse filter: %v", err)
			}

			if !filter.Since.Equal(tt.wantSince) {
				t.Errorf("Since esperado %v, obtido %v", tt.wantSince, filter.Since)
			}
			if !filter.Until.Equal(tt.wantUntil) {
				t.Errorf("Until esperado %v, obtido %v", tt.wantUntil, filter.Until)
			}
			if filter.Detector != tt.wantKind {
				t.Errorf("Detector esperado %q, obtido %q", tt.wantKind, filter.Detector)
			}
			if filter.Limit != tt.wantLimit {
				t.Errorf("Limit esperado %d, obtido %d", tt.wantLimit, filter.Limit)
			}
		})
	}
}
