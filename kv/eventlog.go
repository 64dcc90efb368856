package kv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const eventLogCap = 500

func eventLogKey(day string) string { return fmt.Sprintf("log:%s", day) }

// EventLog is the append-only operator trail of spec section 4.H: one
// right-pushed, length-capped list per calendar day, readable by the
// admin /logdiario command and the dashboard's /admin/logs/:date route.
type EventLog struct {
	store Store
}

func NewEventLog(store Store) *EventLog {
	return &EventLog{store: store}
}

// Append writes one line for today (UTC) in the form
// "[15:04:05] action=claim_route chat_id=123 route_id=R9", then trims
// the list to the most recent eventLogCap entries.
func (l *EventLog) Append(ctx context.Context, action string, fields map[string]string) error {
	now := nowFunc()
	line := formatEventLine(now, action, fields)

	key := eventLogKey(now.UTC().Format("2006-01-02"))
	if err := l.store.RPush(ctx, key, line); err != nil {
		return err
	}
	return l.store.LTrim(ctx, key, -eventLogCap, -1)
}

// Day returns every line logged for the given YYYY-MM-DD day, oldest
// first, or an empty slice if nothing was logged that day.
func (l *EventLog) Day(ctx context.Context, day string) ([]string, error) {
	lines, err := l.store.LRange(ctx, eventLogKey(day), 0, -1)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func formatEventLine(t time.Time, action string, fields map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] action=%s", t.UTC().Format("15:04:05"), action)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, fields[k])
	}
	return b.String()
}
