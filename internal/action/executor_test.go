package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glass-voice/internal/builder"
	"glass-voice/internal/domain"
	"glass-voice/internal/intent"
	"glass-voice/internal/session"
)

var fixedNow = time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

type mockOrders struct {
	orders    map[string]domain.Order
	created   []domain.Order
	updated   map[string]string
	nextNum   string
	numErr    error
	createErr error
	getErr    error
	updateErr error
	listErr   error
}

func newMockOrders(orders ...domain.Order) *mockOrders {
	m := &mockOrders{orders: map[string]domain.Order{}, updated: map[string]string{}, nextNum: "ORD-20240110-0001"}
	for _, o := range orders {
		m.orders[o.OrderNumber] = o
	}
	return m
}

func (m *mockOrders) CreateOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	if m.createErr != nil {
		return domain.Order{}, m.createErr
	}
	o.ID = "id-" + o.OrderNumber
	m.created = append(m.created, o)
	m.orders[o.OrderNumber] = o
	return o, nil
}

func (m *mockOrders) GetOrderByNumber(_ context.Context, n string) (domain.Order, error) {
	if m.getErr != nil {
		return domain.Order{}, m.getErr
	}
	o, ok := m.orders[n]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockOrders) UpdateOrderStatus(_ context.Context, n, status string) (domain.Order, error) {
	if m.updateErr != nil {
		return domain.Order{}, m.updateErr
	}
	o, ok := m.orders[n]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	o.Status = status
	m.orders[n] = o
	m.updated[n] = status
	return o, nil
}

func (m *mockOrders) ListOrders(_ context.Context, _ int) ([]domain.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *mockOrders) NextOrderNumber(context.Context) (string, error) {
	return m.nextNum, m.numErr
}

func (m *mockOrders) FindOrCreateCustomer(_ context.Context, name string) (domain.Customer, error) {
	return domain.Customer{ID: "cust-" + name, Name: name}, nil
}

type mockReports struct {
	reports []domain.ReportData
	pdfs    []string
	err     error
}

func (m *mockReports) GenerateOrderPDF(_ context.Context, o domain.Order) (domain.Document, error) {
	if m.err != nil {
		return domain.Document{}, m.err
	}
	m.pdfs = append(m.pdfs, o.OrderNumber)
	return domain.Document{ID: "pdf-1", URL: "https://reports.test/pdf-1"}, nil
}

func (m *mockReports) GenerateReport(_ context.Context, d domain.ReportData) (domain.Document, error) {
	if m.err != nil {
		return domain.Document{}, m.err
	}
	m.reports = append(m.reports, d)
	return domain.Document{ID: "rep-1", URL: "https://reports.test/rep-1"}, nil
}

func newExecutor(t *testing.T, orders *mockOrders, reports *mockReports) *Executor {
	t.Helper()
	e, err := NewExecutor(orders, reports, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return e
}

func req(n intent.Name, text string) Request {
	in := intent.New(n, 0.9, "test")
	in.Entities = map[string]string{}
	if num, ok := intent.OrderNumber(text); ok {
		in.Entities[intent.EntityOrderNumber] = num
	}
	return Request{Intent: in, Utterance: text}
}

func TestNewExecutor_Validation(t *testing.T) {
	_, err := NewExecutor(nil, &mockReports{})
	require.Error(t, err)
	_, err = NewExecutor(newMockOrders(), nil)
	require.Error(t, err)
}

func TestExecute_UnmappedIntent(t *testing.T) {
	e := newExecutor(t, newMockOrders(), &mockReports{})
	res := e.Execute(context.Background(), req(intent.Greeting, "hello"))
	require.False(t, res.Handled)
	require.False(t, e.Handles(intent.Greeting))
	require.True(t, e.Handles(intent.ModifyOrder))
}

func TestCreate_StartsBuilder(t *testing.T) {
	orders := newMockOrders()
	e := newExecutor(t, orders, &mockReports{})
	sess := session.NewStore().GetOrCreate(context.Background(), "s1")

	r := req(intent.PlaceOrder, "I want to place a new order for tempered glass")
	r.Session = sess
	res := e.Execute(context.Background(), r)

	require.True(t, res.Handled)
	require.Equal(t, CreateOrder, res.Action)
	require.NotNil(t, sess.Builder)
	require.Equal(t, builder.StepDimensions, sess.Builder.Step)
	require.True(t, sess.AwaitingInput)
	require.Contains(t, res.Reply, "What size")
	require.Empty(t, orders.created)
}

func TestCreate_CompleteUtteranceCreatesDirectly(t *testing.T) {
	orders := newMockOrders()
	e := newExecutor(t, orders, &mockReports{})
	sess := session.NewStore().GetOrCreate(context.Background(), "s1")

	r := req(intent.PlaceOrder, "new order: 10 tempered panes 500 by 300 for Acme")
	r.Session = sess
	res := e.Execute(context.Background(), r)

	require.Nil(t, sess.Builder)
	require.Len(t, orders.created, 1)
	created := orders.created[0]
	require.Equal(t, "ORD-20240110-0001", created.OrderNumber)
	require.Equal(t, "cust-Acme", created.CustomerID)
	require.Equal(t, 112.50, created.TotalPrice)
	require.Equal(t, fixedNow, created.CreatedAt)
	require.False(t, res.Degraded)
	require.Contains(t, res.Reply, "ORD-20240110-0001")
}

func confirmed(t *testing.T) *builder.Builder {
	t.Helper()
	b := builder.New(50)
	out := b.Seed("laminated 1000 by 1000, 2 panes for Contoso")
	require.Equal(t, builder.StepConfirm, out.Step)
	return b
}

func TestCreateFromBuilder_DemoModeOnFailure(t *testing.T) {
	orders := newMockOrders()
	orders.createErr = errors.New("supabase: 503")
	e := newExecutor(t, orders, &mockReports{})

	res := e.CreateFromBuilder(context.Background(), confirmed(t))
	require.True(t, res.Degraded)
	require.True(t, res.Handled)
	require.Contains(t, res.Reply, "demo mode")
	require.Contains(t, res.Reply, "ORD-20240110-0001")
	require.Equal(t, 180.0, res.Data.(domain.Order).TotalPrice)
}

func TestCreateFromBuilder_LocalNumberWhenServiceDown(t *testing.T) {
	orders := newMockOrders()
	orders.numErr = errors.New("timeout")
	e := newExecutor(t, orders, &mockReports{})

	res := e.CreateFromBuilder(context.Background(), confirmed(t))
	require.True(t, res.Degraded)
	require.Regexp(t, `^ORD-20240110-\d{4}$`, res.Data.(domain.Order).OrderNumber)
	require.Empty(t, orders.created)
}

func TestCheck(t *testing.T) {
	orders := newMockOrders(domain.Order{
		OrderNumber: "ORD-20240105-0007", CustomerName: "Acme", GlassType: "tempered",
		Width: 500, Height: 300, Quantity: 10, TotalPrice: 112.5, Status: domain.StatusInProduction,
	})
	e := newExecutor(t, orders, &mockReports{})
	ctx := context.Background()

	res := e.Execute(ctx, req(intent.CheckOrder, "where is ORD-20240105-0007"))
	require.Contains(t, res.Reply, "in production")
	require.Contains(t, res.Reply, "$112.50")

	res = e.Execute(ctx, req(intent.CheckOrder, "where's my order"))
	require.Equal(t, "Which order number should I look up?", res.Reply)

	res = e.Execute(ctx, req(intent.CheckOrder, "status of order 99"))
	require.Equal(t, "I couldn't find order 99.", res.Reply)

	orders.getErr = errors.New("connection reset")
	res = e.Execute(ctx, req(intent.CheckOrder, "where is ORD-20240105-0007"))
	require.True(t, res.Degraded)
}

func TestUpdate(t *testing.T) {
	orders := newMockOrders(domain.Order{OrderNumber: "12", Status: domain.StatusPending})
	e := newExecutor(t, orders, &mockReports{})
	ctx := context.Background()

	res := e.Execute(ctx, req(intent.UpdateOrder, "update order 12 to shipped"))
	require.Equal(t, "Order 12 is now shipped.", res.Reply)
	require.Equal(t, domain.StatusShipped, orders.updated["12"])

	res = e.Execute(ctx, req(intent.ModifyOrder, "move order 12 into production"))
	require.Equal(t, UpdateOrder, res.Action)
	require.Equal(t, domain.StatusInProduction, orders.updated["12"])

	res = e.Execute(ctx, req(intent.UpdateOrder, "update order 12"))
	require.Equal(t, "What status should order 12 have?", res.Reply)

	res = e.Execute(ctx, req(intent.UpdateOrder, "mark it as ready"))
	require.Equal(t, "Which order should I mark as ready?", res.Reply)

	orders.updateErr = errors.New("boom")
	res = e.Execute(ctx, req(intent.UpdateOrder, "order 12 is delivered"))
	require.True(t, res.Degraded)
	require.Contains(t, res.Reply, "delivered")
}

func TestCancel(t *testing.T) {
	orders := newMockOrders(domain.Order{OrderNumber: "ORD-20240105-0007", Status: domain.StatusPending})
	e := newExecutor(t, orders, &mockReports{})

	res := e.Execute(context.Background(), req(intent.CancelOrder, "cancel ORD-20240105-0007"))
	require.Equal(t, domain.StatusCancelled, orders.updated["ORD-20240105-0007"])
	require.Contains(t, res.Reply, "cancelled")

	res = e.Execute(context.Background(), req(intent.CancelOrder, "cancel my order"))
	require.Equal(t, "Which order would you like to cancel?", res.Reply)
}

func TestQuote(t *testing.T) {
	e := newExecutor(t, newMockOrders(), &mockReports{})
	ctx := context.Background()

	res := e.Execute(ctx, req(intent.GetQuote, "how much for 10 pieces of tempered 500 by 300"))
	data := res.Data.(map[string]any)
	require.Equal(t, 11.25, data["unitPrice"])
	require.Equal(t, 112.50, data["totalPrice"])
	require.Contains(t, res.Reply, "Tempered glass")

	res = e.Execute(ctx, req(intent.GetQuote, "price for laminated"))
	require.Equal(t, "What size is the laminated glass?", res.Reply)

	res = e.Execute(ctx, req(intent.GetQuote, "quote for 1200 by 800"))
	require.Contains(t, res.Reply, "Which type of glass")
}

func TestReport(t *testing.T) {
	orders := newMockOrders(
		domain.Order{OrderNumber: "A", Status: domain.StatusPending, TotalPrice: 100, CreatedAt: fixedNow},
		domain.Order{OrderNumber: "B", Status: domain.StatusCancelled, TotalPrice: 50, CreatedAt: fixedNow},
		domain.Order{OrderNumber: "C", Status: domain.StatusPending, TotalPrice: 20.25, CreatedAt: fixedNow.AddDate(0, -2, 0)},
	)
	reports := &mockReports{}
	e := newExecutor(t, orders, reports)

	res := e.Execute(context.Background(), req(intent.GenerateReport, "generate a report for this month"))
	require.False(t, res.Degraded)
	require.Len(t, reports.reports, 1)
	rep := reports.reports[0]
	require.Equal(t, "Orders report: this month", rep.Title)
	require.Len(t, rep.Orders, 2)
	require.Equal(t, 100.0, rep.Revenue)
	require.Equal(t, map[string]int{domain.StatusPending: 1, domain.StatusCancelled: 1}, rep.ByStatus)

	reports.err = errors.New("renderer down")
	res = e.Execute(context.Background(), req(intent.GenerateReport, "run a report"))
	require.True(t, res.Degraded)
	require.Contains(t, res.Reply, "3 orders worth $120.25")
}

func TestReport_OrderPDF(t *testing.T) {
	orders := newMockOrders(domain.Order{OrderNumber: "ORD-20240105-0007"})
	reports := &mockReports{}
	e := newExecutor(t, orders, reports)

	res := e.Execute(context.Background(), req(intent.GenerateReport, "make a pdf for ORD-20240105-0007"))
	require.Equal(t, GeneratePDF, res.Action)
	require.Equal(t, []string{"ORD-20240105-0007"}, reports.pdfs)
}

func TestEnd_ClearsHistory(t *testing.T) {
	e := newExecutor(t, newMockOrders(), &mockReports{})
	sess := session.NewStore().GetOrCreate(context.Background(), "s1")
	sess.AppendTurn("user", "hello", fixedNow)
	sess.Builder = builder.New(50)

	r := req(intent.EndConversation, "bye")
	r.Session = sess
	res := e.Execute(context.Background(), r)
	require.Equal(t, EndConversation, res.Action)
	require.Empty(t, sess.Turns)
	require.Nil(t, sess.Builder)
}

func TestExecute_ListFailureDegrades(t *testing.T) {
	orders := newMockOrders()
	orders.listErr = errors.New("no route to host")
	e := newExecutor(t, orders, &mockReports{})

	res := e.Execute(context.Background(), req(intent.SearchOrders, "show all orders"))
	require.True(t, res.Degraded)
	require.True(t, res.Handled)
}
