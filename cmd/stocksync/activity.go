package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/store"
	"github.com/stockmaster/stocksync/internal/ui"
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	GroupID: "data",
	Short:   "List the local activity log",
	Long: `List activity log entries from the local store, newest first.

--since accepts a timestamp or natural language:
  stocksync activity --since 2024-07-01
  stocksync activity --since "yesterday"
  stocksync activity --since "3 days ago"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sinceText, _ := cmd.Flags().GetString("since")
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		var since time.Time
		if sinceText != "" {
			t, err := parseSince(sinceText, time.Now())
			if err != nil {
				return err
			}
			since = t
		}

		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := store.ReadSnapshot(ctx, a.store)
		if err != nil {
			return err
		}
		entries := filterActivities(snap.Collection(schema.SlotActivities), since, user, limit)
		if len(entries) == 0 {
			fmt.Println("No activity")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			date := "-"
			if !e.when.IsZero() {
				date = e.when.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{date, e.text("activity"), e.text("user"), e.text("details")})
		}
		fmt.Print(ui.Table([]string{"DATE", "ACTIVITY", "USER", "DETAILS"}, rows))
		return nil
	},
}

// parseSince resolves an absolute or natural-language time relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q", s)
	}
	return r.Time, nil
}

type activityEntry struct {
	record schema.Record
	when   time.Time
}

func (e activityEntry) text(key string) string {
	v, ok := e.record[key]
	if !ok || v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func activityTime(r schema.Record) time.Time {
	s, _ := r["date"].(string)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// filterActivities returns entries at or after since (when set) for user
// (when set), newest first, at most limit (when positive). Entries without
// a readable date only survive when since is zero.
func filterActivities(records []schema.Record, since time.Time, user string, limit int) []activityEntry {
	out := make([]activityEntry, 0, len(records))
	for _, r := range records {
		e := activityEntry{record: r, when: activityTime(r)}
		if !since.IsZero() && (e.when.IsZero() || e.when.Before(since)) {
			continue
		}
		if user != "" && !strings.EqualFold(e.text("user"), user) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].when.After(out[j].when)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func init() {
	activityCmd.Flags().String("since", "", "only entries at or after this time")
	activityCmd.Flags().String("user", "", "only entries by this user")
	activityCmd.Flags().IntP("limit", "n", 50, "maximum entries to show (0 for all)")

	rootCmd.AddCommand(activityCmd)
}
