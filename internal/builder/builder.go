// Package builder collects the fields of a glass order across conversation
// turns.
package builder

import (
	"fmt"
	"regexp"
	"strings"

	"glass-voice/internal/domain"
)

// Step is the field the builder is currently waiting for.
type Step string

const (
	StepGlassType  Step = "glass_type"
	StepDimensions Step = "dimensions"
	StepQuantity   Step = "quantity"
	StepCustomer   Step = "customer"
	StepConfirm    Step = "confirm"
	StepComplete   Step = "complete"
	StepCancelled  Step = "cancelled"
)

// Builder is the in-progress order owned by one session. It is not safe for
// concurrent use; the owning session serializes access.
type Builder struct {
	Step         Step    `json:"step"`
	GlassType    string  `json:"glassType,omitempty"`
	Width        float64 `json:"width,omitempty"`
	Height       float64 `json:"height,omitempty"`
	Thickness    float64 `json:"thickness,omitempty"`
	Quantity     int     `json:"quantity,omitempty"`
	CustomerName string  `json:"customerName,omitempty"`
	UnitPrice    float64 `json:"unitPrice,omitempty"`
	TotalPrice   float64 `json:"totalPrice,omitempty"`
	BasePrice    float64 `json:"basePrice"`
}

// Outcome describes what one utterance did to the builder.
type Outcome struct {
	Step      Step
	Prompt    string
	Progress  bool
	Confirmed bool
	Cancelled bool
}

// New returns an empty builder waiting for a glass type.
func New(basePrice float64) *Builder {
	if basePrice <= 0 {
		basePrice = DefaultBasePrice
	}
	return &Builder{Step: StepGlassType, BasePrice: basePrice}
}

// NextStep returns the first missing field in priority order, or
// StepConfirm once everything is known.
func NextStep(hasGlassType, hasDimensions, hasQuantity, hasCustomer bool) Step {
	switch {
	case !hasGlassType:
		return StepGlassType
	case !hasDimensions:
		return StepDimensions
	case !hasQuantity:
		return StepQuantity
	case !hasCustomer:
		return StepCustomer
	default:
		return StepConfirm
	}
}

func (b *Builder) next() Step {
	return NextStep(b.GlassType != "", b.Width > 0 && b.Height > 0, b.Quantity > 0, b.CustomerName != "")
}

// Done reports whether the builder reached a terminal step.
func (b *Builder) Done() bool {
	return b.Step == StepComplete || b.Step == StepCancelled
}

// Missing lists the fields still to be collected.
func (b *Builder) Missing() []string {
	var out []string
	if b.GlassType == "" {
		out = append(out, "glass type")
	}
	if b.Width <= 0 || b.Height <= 0 {
		out = append(out, "dimensions")
	}
	if b.Quantity <= 0 {
		out = append(out, "quantity")
	}
	if b.CustomerName == "" {
		out = append(out, "customer name")
	}
	return out
}

// Seed fills whatever fields an opening utterance states explicitly, such
// as "I need 10 tempered panes 500 by 300 for Acme".
func (b *Builder) Seed(text string) Outcome {
	changed := b.fillOthers(text, "")
	return b.advance(changed)
}

// Apply feeds one utterance into the builder.
func (b *Builder) Apply(text string) Outcome {
	switch b.Step {
	case StepComplete, StepCancelled:
		return Outcome{Step: b.Step}
	case StepConfirm:
		return b.confirm(text)
	}

	changed := b.fillCurrent(text)
	if b.fillOthers(text, b.Step) {
		changed = true
	}
	return b.advance(changed)
}

func (b *Builder) advance(changed bool) Outcome {
	b.Step = b.next()
	if b.Step == StepConfirm {
		b.price()
	}
	return Outcome{Step: b.Step, Prompt: b.Prompt(), Progress: changed}
}

var (
	affirmRE = regexp.MustCompile(`(?i)\b(yes|yeah|yep|yup|confirm(ed)?|correct|create( it)?|go ahead|sure|sounds good|do it|place it)\b`)
	negateRE = regexp.MustCompile(`(?i)\b(no|nope|cancel|stop|don't|do not|never mind)\b`)
	// benignNoRE are idioms that contain "no" without refusing.
	benignNoRE = regexp.MustCompile(`(?i)\bno (problem|worries|rush|issue|doubt)\b|\bwhy not\b`)
	cancelRE   = regexp.MustCompile(`(?i)\b(cancel|stop|never mind|nevermind|forget (it|about it)|scrap (it|that))\b`)
)

func (b *Builder) confirm(text string) Outcome {
	negative := negateRE.MatchString(benignNoRE.ReplaceAllString(text, ""))
	if affirmRE.MatchString(text) && !negative {
		b.Step = StepComplete
		return Outcome{Step: StepComplete, Confirmed: true, Progress: true}
	}
	// Corrections win over a bare "no": "no, make it laminated".
	if b.correct(text) {
		return b.advance(true)
	}
	if negative {
		b.Step = StepCancelled
		return Outcome{Step: StepCancelled, Prompt: b.Prompt(), Cancelled: true, Progress: true}
	}
	return Outcome{Step: b.Step, Prompt: b.Prompt()}
}

// Cancel abandons the order.
func (b *Builder) Cancel() Outcome {
	b.Step = StepCancelled
	return Outcome{Step: StepCancelled, Prompt: b.Prompt(), Cancelled: true, Progress: true}
}

// IsCancellation reports whether text asks to abandon the order in progress.
func IsCancellation(text string) bool {
	return cancelRE.MatchString(text)
}

// fillCurrent runs the lenient extractor for the step being prompted for.
func (b *Builder) fillCurrent(text string) bool {
	switch b.Step {
	case StepGlassType:
		if g, ok := ExtractGlassType(text); ok {
			b.GlassType = g
			return true
		}
	case StepDimensions:
		if w, h, ok := ExtractDimensions(text); ok {
			b.Width, b.Height = w, h
			return true
		}
	case StepQuantity:
		if n, ok := ExtractBareQuantity(text); ok {
			b.Quantity = n
			return true
		}
	case StepCustomer:
		if name, ok := ExtractBareCustomer(text); ok {
			b.CustomerName = name
			return true
		}
	}
	return false
}

// fillOthers runs the strict extractors for every unset field except the
// one belonging to skip.
func (b *Builder) fillOthers(text string, skip Step) bool {
	changed := false
	if skip != StepGlassType && b.GlassType == "" {
		if g, ok := ExtractGlassType(text); ok {
			b.GlassType, changed = g, true
		}
	}
	if skip != StepDimensions && (b.Width <= 0 || b.Height <= 0) {
		if w, h, ok := ExtractDimensions(text); ok {
			b.Width, b.Height, changed = w, h, true
		}
	}
	if skip != StepQuantity && b.Quantity <= 0 {
		if n, ok := ExtractQuantity(text); ok {
			b.Quantity, changed = n, true
		}
	}
	if skip != StepCustomer && b.CustomerName == "" {
		if name, ok := ExtractCustomer(text); ok {
			b.CustomerName, changed = name, true
		}
	}
	if b.Thickness <= 0 {
		if t, ok := ExtractThickness(text); ok {
			b.Thickness, changed = t, true
		}
	}
	return changed
}

// correct overwrites already-set fields that text states explicitly.
func (b *Builder) correct(text string) bool {
	changed := false
	if g, ok := ExtractGlassType(text); ok && g != b.GlassType {
		b.GlassType, changed = g, true
	}
	if w, h, ok := ExtractDimensions(text); ok && (w != b.Width || h != b.Height) {
		b.Width, b.Height, changed = w, h, true
	}
	if n, ok := ExtractQuantity(text); ok && n != b.Quantity {
		b.Quantity, changed = n, true
	}
	if name, ok := ExtractCustomer(text); ok && name != b.CustomerName {
		b.CustomerName, changed = name, true
	}
	if t, ok := ExtractThickness(text); ok && t != b.Thickness {
		b.Thickness, changed = t, true
	}
	return changed
}

func (b *Builder) price() {
	b.UnitPrice = UnitPrice(b.BasePrice, b.Width, b.Height, b.GlassType)
	b.TotalPrice = TotalPrice(b.UnitPrice, b.Quantity)
}

// Prompt is what the assistant says while waiting on the current step.
func (b *Builder) Prompt() string {
	switch b.Step {
	case StepGlassType:
		return "What type of glass do you need? We have tempered, laminated, insulated and float glass."
	case StepDimensions:
		return fmt.Sprintf("What size should the %s glass be? For example, 1200 by 800 millimetres.", b.GlassType)
	case StepQuantity:
		return "How many pieces do you need?"
	case StepCustomer:
		return "Which customer is this order for?"
	case StepConfirm:
		return b.Summary() + " Shall I create the order?"
	case StepCancelled:
		return "No problem, I've cancelled that order."
	}
	return ""
}

// Summary reads the collected order back to the user.
func (b *Builder) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s %s, %s by %s millimetres", b.Quantity, b.GlassType, plural("pane", b.Quantity), num(b.Width), num(b.Height))
	if b.Thickness > 0 {
		fmt.Fprintf(&sb, ", %smm thick", num(b.Thickness))
	}
	fmt.Fprintf(&sb, ", for %s. That's $%.2f each, $%.2f in total.", b.CustomerName, b.UnitPrice, b.TotalPrice)
	return sb.String()
}

// Order converts a confirmed builder into an order for the order service.
func (b *Builder) Order() domain.Order {
	return domain.Order{
		CustomerName: b.CustomerName,
		GlassType:    b.GlassType,
		Width:        b.Width,
		Height:       b.Height,
		Thickness:    b.Thickness,
		Quantity:     b.Quantity,
		UnitPrice:    b.UnitPrice,
		TotalPrice:   b.TotalPrice,
		Status:       domain.StatusPending,
	}
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func num(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
