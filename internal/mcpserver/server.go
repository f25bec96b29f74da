// Package mcpserver exposes the tracker store to MCP clients as read-only
// tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"customer-care/internal/analytics"
	"customer-care/internal/fallback"
	"customer-care/internal/storage"
)

type ListSessionsParams struct {
	Prefix string `json:"prefix,omitempty" mcp:"only return session ids starting with this prefix"`
}

type GetSessionParams struct {
	SessionID string `json:"session_id" mcp:"session id (Telegram chat id) to load"`
	Events    bool   `json:"events,omitempty" mcp:"include the raw event list (default: false)"`
}

type StatsParams struct {
	Day    string `json:"day,omitempty" mcp:"UTC day in YYYY-MM-DD format; all time when empty"`
	Format string `json:"format,omitempty" mcp:"'markdown' (default) or 'json'"`
}

// TrackerServer implements the MCP tools over a tracker store.
type TrackerServer struct {
	store   storage.Store
	workers int
}

func NewTrackerServer(store storage.Store, workers int) *TrackerServer {
	return &TrackerServer{store: store, workers: workers}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(ts *TrackerServer, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "customer-care-trackers",
		Version: version,
	}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "Lists the ids of stored customer conversations",
	}, ts.ListSessions)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session",
		Description: "Shows one conversation: transcript, slots, fallback counter and escalation flag",
	}, ts.GetSession)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversation_stats",
		Description: "Builds the conversation analysis report: intents, entities, fallbacks and handoffs",
	}, ts.ConversationStats)
	return server
}

func (ts *TrackerServer) ListSessions(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[ListSessionsParams]) (*mcp.CallToolResultFor[any], error) {
	keys, err := ts.store.Keys()
	if err != nil {
		return errorResult("❌ Failed to list sessions: %v", err), nil
	}
	prefix := params.Arguments.Prefix
	var ids []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			ids = append(ids, k)
		}
	}
	sort.Strings(ids)

	text := fmt.Sprintf("Found %d sessions", len(ids))
	if len(ids) > 0 {
		text += ":\n" + strings.Join(ids, "\n")
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		Meta: map[string]interface{}{
			"sessions": ids,
			"count":    len(ids),
			"success":  true,
		},
	}, nil
}

func (ts *TrackerServer) GetSession(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[GetSessionParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if args.SessionID == "" {
		return errorResult("❌ session_id is required"), nil
	}
	t, found, err := ts.store.Retrieve(args.SessionID)
	if err != nil {
		return errorResult("❌ Failed to load session %s: %v", args.SessionID, err), nil
	}
	if !found {
		return errorResult("Session %s not found", args.SessionID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", t.SessionID)
	fmt.Fprintf(&b, "Consecutive fallbacks: %d, escalated: %v\n", fallback.Count(t), fallback.Escalated(t))
	if last := t.LatestEventTime(); !last.IsZero() {
		fmt.Fprintf(&b, "Last activity: %s\n", last.UTC().Format(time.RFC3339))
	}
	if intent := t.LatestIntent(); intent != "" {
		fmt.Fprintf(&b, "Latest intent: %s\n", intent)
	}
	b.WriteString("\nTranscript:\n")
	for _, turn := range t.Transcript() {
		who := "bot"
		if turn.FromUser {
			who = "user"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, turn.Text)
	}
	if args.Events {
		data, err := json.MarshalIndent(t.Events(), "", "  ")
		if err != nil {
			return errorResult("❌ Failed to encode events: %v", err), nil
		}
		b.WriteString("\nEvents:\n")
		b.Write(data)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
		Meta: map[string]interface{}{
			"session_id":    t.SessionID,
			"slots":         t.Slots(),
			"num_fallbacks": fallback.Count(t),
			"escalated":     fallback.Escalated(t),
			"success":       true,
		},
	}, nil
}

func (ts *TrackerServer) ConversationStats(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[StatsParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	var win analytics.Window
	if args.Day != "" {
		d, err := time.Parse(time.DateOnly, args.Day)
		if err != nil {
			return errorResult("❌ day must be YYYY-MM-DD, got %q", args.Day), nil
		}
		win = analytics.Day(d)
	}
	st, err := analytics.Build(ctx, ts.store, win, ts.workers)
	if err != nil {
		return errorResult("❌ Failed to build report: %v", err), nil
	}

	text := st.GenerateReportSummary()
	if args.Format == "json" {
		if text, err = st.ToJSON(); err != nil {
			return errorResult("❌ Failed to encode report: %v", err), nil
		}
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		Meta: map[string]interface{}{
			"conversations": st.Conversations,
			"fallbacks":     st.TotalFallbacks,
			"escalations":   st.Escalations,
			"success":       true,
		},
	}, nil
}

func errorResult(format string, args ...any) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}
