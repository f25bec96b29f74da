// Package analytics summarizes stored conversations: intent and entity
// usage, fallback and escalation counts, activity by hour and weekday.
package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"customer-care/internal/fallback"
	"customer-care/internal/tracker"
)

// Window limits the analysis to events in [Since, Until). Zero bounds are
// open.
type Window struct {
	Since time.Time
	Until time.Time
}

// Day is the window covering the UTC calendar day of t.
func Day(t time.Time) Window {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Since: start, Until: start.Add(24 * time.Hour)}
}

func (w Window) contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// Stats is the conversation report.
type Stats struct {
	Since                      *time.Time     `json:"since,omitempty"`
	Until                      *time.Time     `json:"until,omitempty"`
	Conversations              int            `json:"total_conversations"`
	Events                     int            `json:"total_events"`
	UserMessages               int            `json:"user_messages"`
	BotMessages                int            `json:"bot_messages"`
	AvgEventsPerConversation   float64        `json:"avg_events_per_conversation"`
	IntentDistribution         map[string]int `json:"intent_distribution"`
	EntityUsage                map[string]int `json:"entities_usage"`
	SlotUsage                  map[string]int `json:"slots_usage"`
	TotalFallbacks             int            `json:"total_fallbacks"`
	ConversationsWithFallbacks int            `json:"conversations_with_fallbacks"`
	Escalations                int            `json:"escalations"`
	EscalatedConversations     int            `json:"escalated_conversations"`
	ByHour                     [24]int        `json:"by_hour"`
	ByWeekday                  [7]int         `json:"by_weekday"`
}

// Analyze computes Stats over the events of trackers that fall inside w.
// A conversation is counted when at least one of its events does.
func Analyze(trackers []*tracker.Tracker, w Window) *Stats {
	st := &Stats{
		IntentDistribution: make(map[string]int),
		EntityUsage:        make(map[string]int),
		SlotUsage:          make(map[string]int),
	}
	if !w.Since.IsZero() {
		since := w.Since.UTC()
		st.Since = &since
	}
	if !w.Until.IsZero() {
		until := w.Until.UTC()
		st.Until = &until
	}

	for _, t := range trackers {
		if t == nil {
			continue
		}
		seen, fallbacks, escalations := 0, 0, 0
		for _, ev := range t.Events() {
			ts := ev.Time()
			if !w.contains(ts) {
				continue
			}
			seen++
			st.ByHour[ts.UTC().Hour()]++
			st.ByWeekday[ts.UTC().Weekday()]++
			switch ev.Kind {
			case tracker.KindUser:
				st.UserMessages++
				if name := ev.IntentName(); name != "" {
					st.IntentDistribution[name]++
					if name == fallback.Intent {
						fallbacks++
					}
				}
				if ev.ParseData != nil {
					for _, ent := range ev.ParseData.Entities {
						if ent.Entity != "" {
							st.EntityUsage[ent.Entity]++
						}
					}
				}
			case tracker.KindBot:
				st.BotMessages++
			case tracker.KindAction:
				if ev.Name == fallback.ActionHandoff {
					escalations++
				}
			}
		}
		if seen == 0 {
			continue
		}
		st.Conversations++
		st.Events += seen
		for name, v := range t.Slots() {
			if isSet(v) {
				st.SlotUsage[name]++
			}
		}
		st.TotalFallbacks += fallbacks
		if fallbacks > 0 {
			st.ConversationsWithFallbacks++
		}
		st.Escalations += escalations
		if escalations > 0 {
			st.EscalatedConversations++
		}
	}
	if st.Conversations > 0 {
		st.AvgEventsPerConversation = float64(st.Events) / float64(st.Conversations)
	}
	return st
}

// isSet treats nil, false, zero and empty values as unused slots.
func isSet(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

type counted struct {
	name  string
	count int
}

func sortedCounts(m map[string]int) []counted {
	out := make([]counted, 0, len(m))
	for k, v := range m {
		out = append(out, counted{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

// GenerateReportSummary renders the stats as a markdown report.
func (st *Stats) GenerateReportSummary() string {
	var b strings.Builder
	b.WriteString("# Conversation Analysis Report\n")
	if st.Since != nil || st.Until != nil {
		b.WriteString("\nPeriod: ")
		if st.Since != nil {
			b.WriteString(st.Since.Format(time.RFC3339))
		}
		b.WriteString(" .. ")
		if st.Until != nil {
			b.WriteString(st.Until.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## 📊 Basic Statistics\n\n")
	fmt.Fprintf(&b, "- Total conversations: %d\n", st.Conversations)
	fmt.Fprintf(&b, "- Total events: %d (user %d, bot %d)\n", st.Events, st.UserMessages, st.BotMessages)
	fmt.Fprintf(&b, "- Average events per conversation: %.2f\n", st.AvgEventsPerConversation)

	b.WriteString("\n## ⚠️ Fallbacks and Handoffs\n\n")
	fmt.Fprintf(&b, "- Total fallbacks: %d\n", st.TotalFallbacks)
	fmt.Fprintf(&b, "- Conversations with fallbacks: %d\n", st.ConversationsWithFallbacks)
	fmt.Fprintf(&b, "- Handoffs to a human: %d (%d conversations)\n", st.Escalations, st.EscalatedConversations)

	if len(st.IntentDistribution) > 0 {
		total := 0
		for _, c := range st.IntentDistribution {
			total += c
		}
		b.WriteString("\n## 🎯 Intent Distribution\n\n")
		b.WriteString("| Intent | Count | Percentage |\n|--------|-------|------------|\n")
		for _, c := range sortedCounts(st.IntentDistribution) {
			fmt.Fprintf(&b, "| `%s` | %d | %.1f%% |\n", c.name, c.count, float64(c.count)*100/float64(total))
		}
	}
	writeTable(&b, "🔍 Entity Usage", "Entity Type", st.EntityUsage)
	writeTable(&b, "🗃️ Slot Usage", "Slot", st.SlotUsage)

	if st.Events > 0 {
		peak := 0
		for h, c := range st.ByHour {
			if c > st.ByHour[peak] {
				peak = h
			}
		}
		fmt.Fprintf(&b, "\nBusiest hour (UTC): %02d:00 with %d events\n", peak, st.ByHour[peak])
	}
	return b.String()
}

func writeTable(b *strings.Builder, title, column string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n| %s | Count |\n|------|-------|\n", title, column)
	for _, c := range sortedCounts(m) {
		fmt.Fprintf(b, "| `%s` | %d |\n", c.name, c.count)
	}
}

// ToJSON serializes the stats for detailed analysis.
func (st *Stats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
