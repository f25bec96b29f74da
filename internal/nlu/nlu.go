package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"customer-care/internal/fallback"
	"customer-care/internal/llm"
	"customer-care/internal/tracker"
)

const (
	IntentRequestHuman = "request_human"
	IntentGreet        = "greet"
	IntentOutOfScope   = "out_of_scope"
)

// Classifier turns a user message into intent and entities.
type Classifier interface {
	Parse(ctx context.Context, text string) (tracker.ParseData, error)
}

// LLMClassifier asks a chat model to pick one of a fixed set of intents.
// Anything it cannot place confidently becomes the fallback intent.
type LLMClassifier struct {
	client    llm.Client
	intents   map[string]bool
	names     []string
	threshold float64
}

func NewLLMClassifier(client llm.Client, intents []string, threshold float64) *LLMClassifier {
	c := &LLMClassifier{client: client, intents: make(map[string]bool), threshold: threshold}
	for _, name := range intents {
		name = strings.TrimSpace(name)
		if name == "" || c.intents[name] {
			continue
		}
		c.intents[name] = true
		c.names = append(c.names, name)
	}
	return c
}

type classification struct {
	Intent     string           `json:"intent"`
	Confidence float64          `json:"confidence"`
	Entities   []tracker.Entity `json:"entities"`
}

func (c *LLMClassifier) Parse(ctx context.Context, text string) (tracker.ParseData, error) {
	resp, err := c.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: c.prompt()},
		{Role: llm.RoleUser, Content: text},
	})
	if err != nil {
		return tracker.ParseData{}, fmt.Errorf("classify: %w", err)
	}
	return c.interpret(resp.Content), nil
}

func (c *LLMClassifier) interpret(content string) tracker.ParseData {
	var cl classification
	if err := json.Unmarshal([]byte(extractJSON(content)), &cl); err != nil {
		return Fallback(0)
	}
	if !c.intents[cl.Intent] || cl.Confidence < c.threshold {
		return Fallback(cl.Confidence)
	}
	return tracker.ParseData{
		Intent:   tracker.Intent{Name: cl.Intent, Confidence: cl.Confidence},
		Entities: cl.Entities,
	}
}

func (c *LLMClassifier) prompt() string {
	var b strings.Builder
	b.WriteString("You classify customer-support messages. Reply with JSON only:\n")
	b.WriteString(`{"intent": "<one of the intents>", "confidence": <0..1>, "entities": [{"entity": "<type>", "value": "<text>"}]}`)
	b.WriteString("\nIntents: ")
	b.WriteString(strings.Join(c.names, ", "))
	b.WriteString("\nUse entity type order_id for order numbers. If nothing fits, use confidence 0.")
	return b.String()
}

// extractJSON strips markdown fences and prose around a JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// commandOf returns the leading "/command" of text without any @botname
// suffix, or "".
func commandOf(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

// Fallback is the parse result for a message that was not understood.
func Fallback(confidence float64) tracker.ParseData {
	return tracker.ParseData{Intent: tracker.Intent{Name: fallback.Intent, Confidence: confidence}}
}

// CommandClassifier resolves bot commands such as /human locally and hands
// every other message to the next classifier.
type CommandClassifier struct {
	Commands map[string]string
	Next     Classifier
}

// DefaultCommands maps the bot commands to intents.
func DefaultCommands() map[string]string {
	return map[string]string{
		"/start": IntentGreet,
		"/human": IntentRequestHuman,
		"/agent": IntentRequestHuman,
	}
}

func (c CommandClassifier) Parse(ctx context.Context, text string) (tracker.ParseData, error) {
	if intent, ok := c.Commands[commandOf(text)]; ok {
		return tracker.ParseData{Intent: tracker.Intent{Name: intent, Confidence: 1}}, nil
	}
	if c.Next == nil {
		return Fallback(0), nil
	}
	return c.Next.Parse(ctx, text)
}
