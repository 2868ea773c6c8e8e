// Package intent owns the canonical intent vocabulary and turns provider or
// pattern output into one Intent shape.
package intent

import "strings"

// Name is a canonical intent.
type Name string

const (
	PlaceOrder      Name = "place_order"
	CheckOrder      Name = "check_order"
	ModifyOrder     Name = "modify_order"
	CancelOrder     Name = "cancel_order"
	GetQuote        Name = "get_quote"
	SearchOrders    Name = "search_orders"
	UpdateOrder     Name = "update_order"
	GenerateReport  Name = "generate_report"
	Greeting        Name = "greeting"
	Goodbye         Name = "goodbye"
	Clarification   Name = "clarification"
	GeneralInquiry  Name = "general_inquiry"
	EndConversation Name = "end_conversation"
)

// Conversational phases.
const (
	PhaseGreeting   = "greeting"
	PhaseGathering  = "information_gathering"
	PhaseOrdering   = "order_taking"
	PhaseConfirming = "confirmation"
	PhaseAssisting  = "assisting"
	PhaseClarifying = "clarification"
	PhaseClosing    = "closing"
)

// SourcePattern labels intents produced by the rule-based classifier.
const SourcePattern = "pattern"

// Intent is the canonical classification of one utterance.
type Intent struct {
	Name          Name              `json:"name"`
	Confidence    float64           `json:"confidence"`
	Entities      map[string]string `json:"entities,omitempty"`
	Emotion       string            `json:"emotion"`
	Urgency       string            `json:"urgency"`
	RequiresInput bool              `json:"requiresInput"`
	ShouldRespond bool              `json:"shouldRespond"`
	Topic         string            `json:"topic"`
	Phase         string            `json:"phase"`
	Reply         string            `json:"reply"`
	Source        string            `json:"source"`
}

// Metadata is the default annotation for a canonical intent.
type Metadata struct {
	Emotion       string
	Urgency       string
	Topic         string
	RequiresInput bool
	Phase         string
	Reply         string
}

var metadata = map[Name]Metadata{
	PlaceOrder: {
		Emotion: "positive", Urgency: "normal", Topic: "new_order", RequiresInput: true, Phase: PhaseOrdering,
		Reply: "Let's set up a new order.",
	},
	CheckOrder: {
		Emotion: "neutral", Urgency: "normal", Topic: "order_status", RequiresInput: false, Phase: PhaseAssisting,
		Reply: "Let me check on that order.",
	},
	ModifyOrder: {
		Emotion: "neutral", Urgency: "normal", Topic: "order_change", RequiresInput: true, Phase: PhaseGathering,
		Reply: "Which order would you like to change, and what should change?",
	},
	CancelOrder: {
		Emotion: "concerned", Urgency: "high", Topic: "order_cancellation", RequiresInput: true, Phase: PhaseConfirming,
		Reply: "Which order would you like to cancel?",
	},
	GetQuote: {
		Emotion: "positive", Urgency: "normal", Topic: "pricing", RequiresInput: true, Phase: PhaseGathering,
		Reply: "I can give you a quote. What glass type and size do you need?",
	},
	SearchOrders: {
		Emotion: "neutral", Urgency: "low", Topic: "order_search", RequiresInput: false, Phase: PhaseAssisting,
		Reply: "Here's what I found.",
	},
	UpdateOrder: {
		Emotion: "neutral", Urgency: "normal", Topic: "order_update", RequiresInput: true, Phase: PhaseGathering,
		Reply: "Which order should I update, and to what status?",
	},
	GenerateReport: {
		Emotion: "neutral", Urgency: "low", Topic: "reporting", RequiresInput: false, Phase: PhaseAssisting,
		Reply: "I'll prepare that report.",
	},
	Greeting: {
		Emotion: "positive", Urgency: "low", Topic: "greeting", RequiresInput: true, Phase: PhaseGreeting,
		Reply: "Hello! I can place, check, update or search glass orders. What can I do for you?",
	},
	Goodbye: {
		Emotion: "positive", Urgency: "low", Topic: "farewell", RequiresInput: false, Phase: PhaseClosing,
		Reply: "Goodbye! Talk to you soon.",
	},
	Clarification: {
		Emotion: "confused", Urgency: "normal", Topic: "clarification", RequiresInput: true, Phase: PhaseClarifying,
		Reply: "Sorry about that. You can ask me to place an order, check an order, get a quote or run a report.",
	},
	GeneralInquiry: {
		Emotion: "neutral", Urgency: "low", Topic: "general", RequiresInput: true, Phase: PhaseAssisting,
		Reply: "I can help with glass orders, quotes and reports. What would you like to do?",
	},
	EndConversation: {
		Emotion: "neutral", Urgency: "low", Topic: "end", RequiresInput: false, Phase: PhaseClosing,
		Reply: "Thanks for calling. Goodbye!",
	},
}

// Lookup returns the default metadata for n; unknown names get the
// general_inquiry row.
func Lookup(n Name) Metadata {
	if m, ok := metadata[n]; ok {
		return m
	}
	return metadata[GeneralInquiry]
}

// Valid reports whether n is in the canonical vocabulary.
func (n Name) Valid() bool {
	_, ok := metadata[n]
	return ok
}

// synonyms maps provider vocabulary onto canonical names. Keys are already
// normalized by normalizeKey.
var synonyms = map[string]Name{
	"create_order":  PlaceOrder,
	"new_order":     PlaceOrder,
	"order":         PlaceOrder,
	"order_glass":   PlaceOrder,
	"purchase":      PlaceOrder,
	"order_status":  CheckOrder,
	"status":        CheckOrder,
	"track_order":   CheckOrder,
	"get_order":     CheckOrder,
	"change_order":  ModifyOrder,
	"edit_order":    ModifyOrder,
	"delete_order":  CancelOrder,
	"quote":         GetQuote,
	"price":         GetQuote,
	"pricing":       GetQuote,
	"estimate":      GetQuote,
	"search":        SearchOrders,
	"find_orders":   SearchOrders,
	"list_orders":   SearchOrders,
	"search_order":  SearchOrders,
	"update_status": UpdateOrder,
	"set_status":    UpdateOrder,
	"report":        GenerateReport,
	"generate_pdf":  GenerateReport,
	"pdf":           GenerateReport,
	"hello":         Greeting,
	"hi":            Greeting,
	"greet":         Greeting,
	"bye":           Goodbye,
	"farewell":      Goodbye,
	"help":          Clarification,
	"clarify":       Clarification,
	"unclear":       Clarification,
	"unknown":       GeneralInquiry,
	"question":      GeneralInquiry,
	"inquiry":       GeneralInquiry,
	"general":       GeneralInquiry,
	"end":           EndConversation,
	"stop":          EndConversation,
	"hang_up":       EndConversation,
	"end_call":      EndConversation,
	"end_session":   EndConversation,
}

// Normalize maps arbitrary provider vocabulary onto a canonical name.
func Normalize(raw string) (Name, bool) {
	key := normalizeKey(raw)
	if key == "" {
		return "", false
	}
	if n := Name(key); n.Valid() {
		return n, true
	}
	if n, ok := synonyms[key]; ok {
		return n, true
	}
	return "", false
}

func normalizeKey(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(s)
	return strings.Trim(s, "_")
}

// New builds an Intent for n with its default metadata applied.
func New(n Name, confidence float64, source string) Intent {
	m := Lookup(n)
	if !n.Valid() {
		n = GeneralInquiry
	}
	return Intent{
		Name:          n,
		Confidence:    clamp(confidence),
		Entities:      map[string]string{},
		Emotion:       m.Emotion,
		Urgency:       m.Urgency,
		RequiresInput: m.RequiresInput,
		ShouldRespond: true,
		Topic:         m.Topic,
		Phase:         m.Phase,
		Reply:         m.Reply,
		Source:        source,
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
