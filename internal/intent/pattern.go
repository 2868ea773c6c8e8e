package intent

import (
	"regexp"
	"strings"
)

const fallbackConfidence = 0.5

// EntityOrderNumber is the entity key for an extracted order reference.
const EntityOrderNumber = "order_number"

// rule matches when every pattern in all matches and, if any is set, at
// least one pattern in any matches.
type rule struct {
	name       Name
	confidence float64
	all        []*regexp.Regexp
	any        []*regexp.Regexp
}

func (r rule) match(s string) bool {
	for _, re := range r.all {
		if !re.MatchString(s) {
			return false
		}
	}
	if len(r.any) == 0 {
		return true
	}
	for _, re := range r.any {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func w(words string) *regexp.Regexp {
	return regexp.MustCompile(`\b(` + words + `)\b`)
}

var (
	orderWord = w(`orders?`)

	orderNumberRE = regexp.MustCompile(`(?i)\b(ord-\d{8}-\d{3,6})\b|\border\s*(?:number|no\.?|#)?\s*#?(\d{1,8})\b`)
)

// rules are evaluated top to bottom; the first match wins.
var rules = []rule{
	{name: EndConversation, confidence: 0.9, any: []*regexp.Regexp{
		w(`bye|goodbye|stop|hang up|that's all|that is all`), w(`end (the |this )?(conversation|call|session)`),
	}},
	{name: CancelOrder, confidence: 0.8, all: []*regexp.Regexp{w(`cancel`), orderWord}},
	{name: PlaceOrder, confidence: 0.8, all: []*regexp.Regexp{orderWord}, any: []*regexp.Regexp{
		w(`new|create|place|make|start|put in`),
	}},
	{name: UpdateOrder, confidence: 0.75, all: []*regexp.Regexp{orderWord}, any: []*regexp.Regexp{
		w(`update|mark|set|status to|move`),
	}},
	{name: ModifyOrder, confidence: 0.75, all: []*regexp.Regexp{orderWord}, any: []*regexp.Regexp{
		w(`change|modify|edit|adjust`),
	}},
	{name: CheckOrder, confidence: 0.8, all: []*regexp.Regexp{orderWord}, any: []*regexp.Regexp{
		w(`status|track|where is|where's|check|progress`),
	}},
	{name: GenerateReport, confidence: 0.75, any: []*regexp.Regexp{w(`report|pdf|invoice|summary|export`)}},
	{name: SearchOrders, confidence: 0.75, all: []*regexp.Regexp{orderWord}, any: []*regexp.Regexp{
		w(`search|find|show|list|look up|any|all`),
	}},
	{name: GetQuote, confidence: 0.75, any: []*regexp.Regexp{w(`quote|price|pricing|cost|how much|estimate`)}},
	{name: PlaceOrder, confidence: 0.7, all: []*regexp.Regexp{w(`glass|panes?|panels?|sheets?|windows?`)}, any: []*regexp.Regexp{
		w(`i need|i want|i'd like|i would like|can i get|order`),
	}},
	{name: Greeting, confidence: 0.8, any: []*regexp.Regexp{
		regexp.MustCompile(`^\s*(hi|hello|hey|hiya|howdy|good (morning|afternoon|evening))\b`),
	}},
	{name: Clarification, confidence: 0.6, any: []*regexp.Regexp{
		w(`what do you mean|repeat|pardon|say that again|help|confused|don't understand`),
	}},
}

// Fallback classifies text with fixed rules. It never fails.
func Fallback(text string) Intent {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, r := range rules {
		if r.match(s) {
			in := New(r.name, r.confidence, SourcePattern)
			addPatternEntities(in.Entities, text)
			return in
		}
	}
	in := New(GeneralInquiry, fallbackConfidence, SourcePattern)
	addPatternEntities(in.Entities, text)
	return in
}

// OrderNumber extracts an order reference from text: either a full order
// number (ORD-20240101-0001) or "order 42".
func OrderNumber(text string) (string, bool) {
	m := orderNumberRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return strings.ToUpper(m[1]), true
	}
	return m[2], true
}

func addPatternEntities(entities map[string]string, text string) {
	if n, ok := OrderNumber(text); ok {
		entities[EntityOrderNumber] = n
	}
}
