package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"glass-voice/internal/domain"
)

// maxContextTurns bounds how much history is sent to a backend.
const maxContextTurns = 10

// Intents lists the vocabulary offered to backends. Backends may still answer
// with synonyms; the intent package normalizes them.
var Intents = []string{
	"place_order", "check_order", "modify_order", "cancel_order", "get_quote",
	"search_orders", "update_order", "generate_report", "greeting", "goodbye",
	"clarification", "general_inquiry", "end_conversation",
}

type classificationPayload struct {
	Intent        string         `json:"intent"`
	Confidence    float64        `json:"confidence"`
	Entities      map[string]any `json:"entities"`
	ShouldRespond *bool          `json:"should_respond"`
}

type replyPayload struct {
	Reply           string `json:"reply"`
	SuggestedAction string `json:"suggested_action"`
}

// ClassificationMessages builds the chat transcript for an intent request.
func ClassificationMessages(text string, turns []domain.Turn) (string, []domain.ChatMessage) {
	messages := domain.TurnsToMessages(tail(turns, maxContextTurns))
	messages = append(messages, domain.ChatMessage{Role: "user", Content: text})
	return classificationSystemPrompt(), messages
}

// ReplyMessages builds the chat transcript for a reply request.
func ReplyMessages(req ReplyRequest) (string, []domain.ChatMessage) {
	messages := domain.TurnsToMessages(tail(req.Turns, maxContextTurns))
	messages = append(messages, domain.ChatMessage{Role: "user", Content: req.Text})
	return replySystemPrompt(req), messages
}

func classificationSystemPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You classify requests spoken to the voice assistant of a glass manufacturing business.",
		"",
		"Intents:",
		strings.Join(Intents, ", "),
		"",
		"Entities to extract when present:",
		"glass_type, width, height, thickness, quantity, customer_name, order_number, status",
		"",
		"Output Contract:",
		"Return JSON only with keys intent (string), confidence (number 0..1), " +
			"entities (object of strings) and should_respond (boolean).",
	}, "\n")
}

func replySystemPrompt(req ReplyRequest) string {
	lines := []string{
		"Role:",
		"You are the voice assistant of a glass manufacturing business. Replies are spoken aloud.",
		"",
		"Behavior Rules:",
		"1) Answer in one or two short sentences.",
		"2) Never invent order numbers, prices or statuses that are not in the provided data.",
		"3) Ask one question at a time when information is missing.",
		"",
		"Detected intent: " + req.Intent,
	}
	if len(req.Data) > 0 {
		if raw, err := json.Marshal(req.Data); err == nil {
			lines = append(lines, "", "Data:", string(raw))
		}
	}
	lines = append(lines, "",
		"Output Contract:",
		"Return JSON only with keys reply (string) and suggested_action (string, may be empty).")
	return strings.Join(lines, "\n")
}

// ParseClassification decodes a backend's JSON intent answer.
func ParseClassification(raw string) (Classification, error) {
	var p classificationPayload
	if err := decodeSingle(raw, &p); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	p.Intent = strings.TrimSpace(p.Intent)
	if p.Intent == "" {
		return Classification{}, errors.New("decode classification: missing intent")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return Classification{}, fmt.Errorf("decode classification: confidence %v out of range", p.Confidence)
	}
	out := Classification{
		Intent:        p.Intent,
		Confidence:    p.Confidence,
		Entities:      stringifyEntities(p.Entities),
		ShouldRespond: true,
	}
	if p.ShouldRespond != nil {
		out.ShouldRespond = *p.ShouldRespond
	}
	return out, nil
}

// ParseReply decodes a backend's JSON reply answer. Plain text is accepted
// as the reply itself.
func ParseReply(raw string) (Reply, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reply{}, errors.New("decode reply: empty")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return Reply{Text: trimmed}, nil
	}
	var p replyPayload
	if err := decodeSingle(trimmed, &p); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	if strings.TrimSpace(p.Reply) == "" {
		return Reply{}, errors.New("decode reply: missing reply")
	}
	return Reply{Text: strings.TrimSpace(p.Reply), SuggestedAction: p.SuggestedAction}, nil
}

func decodeSingle(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewBufferString(stripFence(raw)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("multiple JSON values")
		}
		return fmt.Errorf("trailing data: %w", err)
	}
	return nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func stringifyEntities(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(val) == "" {
				continue
			}
			out[k] = strings.TrimSpace(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func tail(turns []domain.Turn, n int) []domain.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
