// Package action runs the side effects behind a classified intent against
// the order service and the report generator.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"glass-voice/internal/builder"
	"glass-voice/internal/domain"
	"glass-voice/internal/intent"
	"glass-voice/internal/metrics"
	"glass-voice/internal/session"
)

// Action names reported back to callers.
const (
	CreateOrder     = "create_order"
	CheckOrder      = "check_order"
	UpdateOrder     = "update_order"
	CancelOrder     = "cancel_order"
	SearchOrders    = "search_orders"
	GetQuote        = "get_quote"
	GenerateReport  = "generate_report"
	GeneratePDF     = "generate_pdf"
	EndConversation = "end_conversation"
)

// OrderStore is the order and customer service.
type OrderStore interface {
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, number, status string) (domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	NextOrderNumber(ctx context.Context) (string, error)
	FindOrCreateCustomer(ctx context.Context, name string) (domain.Customer, error)
}

// ReportGenerator renders PDFs and reports.
type ReportGenerator interface {
	GenerateOrderPDF(ctx context.Context, order domain.Order) (domain.Document, error)
	GenerateReport(ctx context.Context, data domain.ReportData) (domain.Document, error)
}

// Request is one intent to act on. Session is locked by the caller for the
// duration of Execute.
type Request struct {
	Intent    intent.Intent
	Utterance string
	Session   *session.Session
}

// Result is what an action produced. Handled is false when the intent has
// no side effect and the caller should answer from the intent alone.
type Result struct {
	Action   string `json:"action,omitempty"`
	Reply    string `json:"reply"`
	Data     any    `json:"data,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	Handled  bool   `json:"-"`
}

type handler func(ctx context.Context, req Request) Result

// listLimit bounds how many orders a search or report reads.
const listLimit = 500

type Executor struct {
	orders    OrderStore
	reports   ReportGenerator
	basePrice float64
	logger    *slog.Logger
	now       func() time.Time

	table map[intent.Name]handler
}

type Option func(*Executor)

func WithBasePrice(p float64) Option {
	return func(e *Executor) {
		if p > 0 {
			e.basePrice = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewExecutor(orders OrderStore, reports ReportGenerator, opts ...Option) (*Executor, error) {
	if orders == nil {
		return nil, errors.New("action: order store is nil")
	}
	if reports == nil {
		return nil, errors.New("action: report generator is nil")
	}
	e := &Executor{
		orders:    orders,
		reports:   reports,
		basePrice: builder.DefaultBasePrice,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	// modify_order and update_order share the update handler; there is no
	// separate modify flow.
	e.table = map[intent.Name]handler{
		intent.PlaceOrder:      e.create,
		intent.CheckOrder:      e.check,
		intent.UpdateOrder:     e.update,
		intent.ModifyOrder:     e.update,
		intent.CancelOrder:     e.cancel,
		intent.SearchOrders:    e.search,
		intent.GetQuote:        e.quote,
		intent.GenerateReport:  e.report,
		intent.EndConversation: e.end,
		intent.Goodbye:         e.end,
	}
	return e, nil
}

// Execute runs the action mapped to req.Intent. Collaborator failures are
// turned into degraded replies; Execute never fails.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	h, ok := e.table[req.Intent.Name]
	if !ok {
		return Result{}
	}
	res := h(ctx, req)
	res.Handled = true
	return res
}

// Handles reports whether n maps to an action.
func (e *Executor) Handles(n intent.Name) bool {
	_, ok := e.table[n]
	return ok
}

func (e *Executor) fail(action string, err error, args ...any) {
	metrics.ActionFailures.WithLabelValues(action).Inc()
	e.logger.Error("action failed", append([]any{"action", action, "err", err}, args...)...)
}

func (e *Executor) create(ctx context.Context, req Request) Result {
	b := builder.New(e.basePrice)
	out := b.Seed(req.Utterance)
	if out.Step == builder.StepConfirm {
		return e.CreateFromBuilder(ctx, b)
	}
	if req.Session != nil {
		req.Session.Builder = b
		req.Session.AwaitingInput = true
	}
	reply := "Let's set up a new order. " + out.Prompt
	return Result{
		Action: CreateOrder,
		Reply:  reply,
		Data:   map[string]any{"step": out.Step, "missing": b.Missing()},
	}
}

// CreateFromBuilder places the order a builder collected. When the order
// service fails the order is acknowledged under a locally generated number.
func (e *Executor) CreateFromBuilder(ctx context.Context, b *builder.Builder) Result {
	order := b.Order()
	order.CreatedAt = e.now()

	number, err := e.orders.NextOrderNumber(ctx)
	if err != nil {
		e.fail(CreateOrder, err, "stage", "order_number")
		return e.demoOrder(order)
	}
	order.OrderNumber = number

	customer, err := e.orders.FindOrCreateCustomer(ctx, order.CustomerName)
	if err != nil {
		e.fail(CreateOrder, err, "stage", "customer")
		return e.demoOrder(order)
	}
	order.CustomerID = customer.ID

	created, err := e.orders.CreateOrder(ctx, order)
	if err != nil {
		e.fail(CreateOrder, err, "stage", "create", "order", number)
		return e.demoOrder(order)
	}
	metrics.BuilderOutcomes.WithLabelValues("created").Inc()
	return Result{
		Action: CreateOrder,
		Reply: fmt.Sprintf("Done. Order %s is in for %s: %s. Total $%.2f.",
			created.OrderNumber, created.CustomerName, describe(created), created.TotalPrice),
		Data:    created,
		Handled: true,
	}
}

func (e *Executor) demoOrder(order domain.Order) Result {
	metrics.BuilderOutcomes.WithLabelValues("demo").Inc()
	if order.OrderNumber == "" {
		order.OrderNumber = LocalOrderNumber(e.now())
	}
	return Result{
		Action: CreateOrder,
		Reply: fmt.Sprintf("I've recorded order %s for %s in demo mode. It will be entered once the order system is back.",
			order.OrderNumber, order.CustomerName),
		Data:     order,
		Degraded: true,
		Handled:  true,
	}
}

// LocalOrderNumber formats an order number without the order service.
func LocalOrderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", at.Format("20060102"), rand.Intn(10000))
}

func orderNumber(req Request) (string, bool) {
	if n := req.Intent.Entities[intent.EntityOrderNumber]; n != "" {
		return n, true
	}
	return intent.OrderNumber(req.Utterance)
}

func (e *Executor) check(ctx context.Context, req Request) Result {
	number, ok := orderNumber(req)
	if !ok {
		return Result{Action: CheckOrder, Reply: "Which order number should I look up?"}
	}
	order, err := e.orders.GetOrderByNumber(ctx, number)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return Result{Action: CheckOrder, Reply: fmt.Sprintf("I couldn't find order %s.", number)}
	case err != nil:
		e.fail(CheckOrder, err, "order", number)
		return unreachable(CheckOrder)
	}
	return Result{
		Action: CheckOrder,
		Reply: fmt.Sprintf("Order %s for %s is %s: %s, $%.2f in total.",
			order.OrderNumber, order.CustomerName, spokenStatus(order.Status), describe(order), order.TotalPrice),
		Data: order,
	}
}

func (e *Executor) update(ctx context.Context, req Request) Result {
	number, hasNumber := orderNumber(req)
	status, hasStatus := StatusFromText(req.Utterance)
	if s := req.Intent.Entities["status"]; !hasStatus && s != "" {
		status, hasStatus = StatusFromText(s)
	}
	switch {
	case !hasNumber && !hasStatus:
		return Result{Action: UpdateOrder, Reply: "Which order should I update, and to what status?"}
	case !hasNumber:
		return Result{Action: UpdateOrder, Reply: fmt.Sprintf("Which order should I mark as %s?", spokenStatus(status))}
	case !hasStatus:
		return Result{Action: UpdateOrder, Reply: fmt.Sprintf("What status should order %s have?", number)}
	}
	return e.setStatus(ctx, UpdateOrder, number, status)
}

func (e *Executor) cancel(ctx context.Context, req Request) Result {
	number, ok := orderNumber(req)
	if !ok {
		return Result{Action: CancelOrder, Reply: "Which order would you like to cancel?"}
	}
	return e.setStatus(ctx, CancelOrder, number, domain.StatusCancelled)
}

func (e *Executor) setStatus(ctx context.Context, action, number, status string) Result {
	order, err := e.orders.UpdateOrderStatus(ctx, number, status)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return Result{Action: action, Reply: fmt.Sprintf("I couldn't find order %s.", number)}
	case err != nil:
		e.fail(action, err, "order", number, "status", status)
		return Result{
			Action:   action,
			Reply:    fmt.Sprintf("I've noted that order %s should be %s, but I can't reach the order system right now. Please check it again shortly.", number, spokenStatus(status)),
			Data:     map[string]string{"orderNumber": number, "status": status},
			Degraded: true,
		}
	}
	return Result{
		Action: action,
		Reply:  fmt.Sprintf("Order %s is now %s.", order.OrderNumber, spokenStatus(order.Status)),
		Data:   order,
	}
}

func (e *Executor) quote(_ context.Context, req Request) Result {
	glass, hasGlass := builder.ExtractGlassType(req.Utterance)
	w, h, hasDims := builder.ExtractDimensions(req.Utterance)
	switch {
	case !hasGlass && !hasDims:
		return Result{Action: GetQuote, Reply: "I can give you a quote. What glass type and size do you need?"}
	case !hasGlass:
		return Result{Action: GetQuote, Reply: "Which type of glass should I price? Tempered, laminated, insulated or float?"}
	case !hasDims:
		return Result{Action: GetQuote, Reply: fmt.Sprintf("What size is the %s glass?", glass)}
	}
	qty, ok := builder.ExtractQuantity(req.Utterance)
	if !ok {
		qty = 1
	}
	unit := builder.UnitPrice(e.basePrice, w, h, glass)
	total := builder.TotalPrice(unit, qty)

	reply := fmt.Sprintf("%s glass at %.0f by %.0f millimetres is $%.2f per pane", glass, w, h, unit)
	if qty > 1 {
		reply += fmt.Sprintf(", $%.2f for %d", total, qty)
	}
	reply += ". Would you like to place an order?"
	return Result{
		Action: GetQuote,
		Reply:  capitalize(reply),
		Data: map[string]any{
			"glassType": glass, "width": w, "height": h,
			"quantity": qty, "unitPrice": unit, "totalPrice": total,
		},
	}
}

func (e *Executor) report(ctx context.Context, req Request) Result {
	if strings.Contains(strings.ToLower(req.Utterance), "pdf") {
		if number, ok := orderNumber(req); ok {
			return e.orderPDF(ctx, number)
		}
	}

	orders, err := e.orders.ListOrders(ctx, listLimit)
	if err != nil {
		e.fail(GenerateReport, err)
		return unreachable(GenerateReport)
	}
	orders, label := Filter(orders, req.Utterance, e.now())
	data := BuildReport("Orders report", orders, e.now())
	if label != "" {
		data.Title = "Orders report: " + label
	}

	doc, err := e.reports.GenerateReport(ctx, data)
	if err != nil {
		e.fail(GenerateReport, err)
		return Result{
			Action:   GenerateReport,
			Reply:    fmt.Sprintf("The report service is unavailable, but here's the summary: %d orders worth $%.2f.", len(data.Orders), data.Revenue),
			Data:     data,
			Degraded: true,
		}
	}
	return Result{
		Action: GenerateReport,
		Reply:  fmt.Sprintf("Your report is ready: %d orders worth $%.2f.", len(data.Orders), data.Revenue),
		Data:   map[string]any{"document": doc, "summary": data.ByStatus, "revenue": data.Revenue},
	}
}

func (e *Executor) orderPDF(ctx context.Context, number string) Result {
	order, err := e.orders.GetOrderByNumber(ctx, number)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return Result{Action: GeneratePDF, Reply: fmt.Sprintf("I couldn't find order %s.", number)}
	case err != nil:
		e.fail(GeneratePDF, err, "order", number)
		return unreachable(GeneratePDF)
	}
	doc, err := e.reports.GenerateOrderPDF(ctx, order)
	if err != nil {
		e.fail(GeneratePDF, err, "order", number)
		return Result{
			Action:   GeneratePDF,
			Reply:    fmt.Sprintf("I couldn't produce the PDF for order %s right now. Please try again later.", number),
			Data:     order,
			Degraded: true,
		}
	}
	return Result{
		Action: GeneratePDF,
		Reply:  fmt.Sprintf("The PDF for order %s is ready.", number),
		Data:   doc,
	}
}

func (e *Executor) end(_ context.Context, req Request) Result {
	if req.Session != nil {
		req.Session.ClearHistory()
	}
	return Result{Action: EndConversation, Reply: intent.Lookup(intent.EndConversation).Reply}
}

func unreachable(action string) Result {
	return Result{
		Action:   action,
		Reply:    "I can't reach the order system right now. Please try again in a moment.",
		Degraded: true,
	}
}

func describe(o domain.Order) string {
	unit := "panes"
	if o.Quantity == 1 {
		unit = "pane"
	}
	return fmt.Sprintf("%d %s %s, %.0f by %.0f millimetres", o.Quantity, o.GlassType, unit, o.Width, o.Height)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
