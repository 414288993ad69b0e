package main

import (
	"testing"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 7, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2024-07-01", want: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-07-01T08:30:00Z", want: time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)},
		{in: "3 days ago", want: now.AddDate(0, 0, -3)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if err != nil {
				t.Fatalf("parseSince(%q) failed: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := parseSince("qqq zzz", now); err == nil {
		t.Error("parseSince() accepted nonsense")
	}
}

func TestFilterActivities(t *testing.T) {
	records := []schema.Record{
		{"id": float64(1), "date": "2024-07-01T09:00:00Z", "activity": "Sale", "user": "Admin"},
		{"id": float64(2), "date": "2024-07-03T09:00:00Z", "activity": "Purchase", "user": "clerk"},
		{"id": float64(3), "date": "2024-07-02T09:00:00Z", "activity": "Sale", "user": "admin"},
		{"id": float64(4), "activity": "Undated", "user": "admin"},
	}
	ids := func(entries []activityEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.text("id")
		}
		return out
	}

	tests := []struct {
		name  string
		since time.Time
		user  string
		limit int
		want  []string
	}{
		{name: "all newest first", want: []string{"2", "3", "1", "4"}},
		{name: "since drops undated", since: time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), want: []string{"2", "3"}},
		{name: "user case insensitive", user: "ADMIN", want: []string{"3", "1", "4"}},
		{name: "limit", limit: 2, want: []string{"2", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(filterActivities(records, tt.since, tt.user, tt.limit))
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("ids = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
