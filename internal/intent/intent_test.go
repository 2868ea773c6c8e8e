package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"glass-voice/internal/domain"
	"glass-voice/internal/provider"
)

type fakeResolver struct {
	n     int
	res   provider.Classification
	err   error
	calls int
}

func (f *fakeResolver) Len() int { return f.n }

func (f *fakeResolver) Resolve(_ context.Context, _ string, _ []domain.Turn) (provider.Classification, error) {
	f.calls++
	return f.res, f.err
}

func TestNormalize(t *testing.T) {
	cases := map[string]Name{
		"PLACE_ORDER":     PlaceOrder,
		"place-order":     PlaceOrder,
		"Create Order":    PlaceOrder,
		"order_status":    CheckOrder,
		"Hello":           Greeting,
		" end_call ":      EndConversation,
		"generate.pdf":    GenerateReport,
		"search_orders":   SearchOrders,
		"update_status":   UpdateOrder,
		"general":         GeneralInquiry,
		"clarification":   Clarification,
		"estimate":        GetQuote,
		"change_order":    ModifyOrder,
		"delete_order":    CancelOrder,
		"goodbye":         Goodbye,
		"find_orders":     SearchOrders,
		"generate_report": GenerateReport,
	}
	for raw, want := range cases {
		got, ok := Normalize(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}

	_, ok := Normalize("launch_rocket")
	require.False(t, ok)
	_, ok = Normalize("  ")
	require.False(t, ok)
}

func TestFallback(t *testing.T) {
	cases := []struct {
		text string
		want Name
	}{
		{"goodbye", EndConversation},
		{"ok that's all, bye", EndConversation},
		{"please stop", EndConversation},
		{"Hello there", Greeting},
		{"I'd like to place a new order", PlaceOrder},
		{"hello, I want to create an order", PlaceOrder},
		{"cancel order 42", CancelOrder},
		{"where is order ORD-20240105-0007", CheckOrder},
		{"what's the status of my order", CheckOrder},
		{"update order 12 to shipped", UpdateOrder},
		{"change order 12 please", ModifyOrder},
		{"show me all tempered orders", SearchOrders},
		{"how much would tempered glass cost", GetQuote},
		{"generate a report for this month", GenerateReport},
		{"I need 10 laminated panes", PlaceOrder},
		{"what do you mean", Clarification},
		{"the weather is nice", GeneralInquiry},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			in := Fallback(tc.text)
			require.Equal(t, tc.want, in.Name)
			require.Equal(t, SourcePattern, in.Source)
			require.NotEmpty(t, in.Reply)
		})
	}
}

func TestFallback_DefaultConfidence(t *testing.T) {
	in := Fallback("tell me something")
	require.Equal(t, GeneralInquiry, in.Name)
	require.InDelta(t, 0.5, in.Confidence, 1e-9)
}

func TestClassify_HiWithoutProviders(t *testing.T) {
	c := NewClassifier(nil, nil)
	in := c.Classify(context.Background(), "hi", nil)
	require.Equal(t, Greeting, in.Name)
	require.InDelta(t, 0.8, in.Confidence, 1e-9)
	require.Equal(t, PhaseGreeting, in.Phase)
	require.Equal(t, SourcePattern, in.Source)
}

func TestClassify_AllProvidersFailFallsBack(t *testing.T) {
	r := &fakeResolver{n: 2, err: errors.New("ensemble: all providers failed")}
	c := NewClassifier(r, nil)
	in := c.Classify(context.Background(), "", nil)
	require.Equal(t, 1, r.calls)
	require.NotEmpty(t, in.Name)
	require.Equal(t, GeneralInquiry, in.Name)
}

func TestClassify_NormalizesProviderOutput(t *testing.T) {
	r := &fakeResolver{n: 1, res: provider.Classification{
		Intent:        "Order_Status",
		Confidence:    0.93,
		Entities:      map[string]string{"Order_Number": "ORD-20240101-0001"},
		ShouldRespond: true,
		Provider:      "openai",
	}}
	in := NewClassifier(r, nil).Classify(context.Background(), "where is my order", nil)
	require.Equal(t, CheckOrder, in.Name)
	require.InDelta(t, 0.93, in.Confidence, 1e-9)
	require.Equal(t, "openai", in.Source)
	require.Equal(t, "ORD-20240101-0001", in.Entities["order_number"])
	require.Equal(t, "order_status", in.Topic)
	require.Equal(t, Lookup(CheckOrder).Reply, in.Reply)
}

func TestFromProvider_UnknownIntentBecomesGeneral(t *testing.T) {
	in := FromProvider(provider.Classification{Intent: "weather", Confidence: 0.7, Provider: "anthropic"}, "order 9 please")
	require.Equal(t, GeneralInquiry, in.Name)
	require.InDelta(t, 0.7, in.Confidence, 1e-9)
	require.Equal(t, "9", in.Entities["order_number"])
}

func TestNew_ClampsAndDefaults(t *testing.T) {
	in := New(Name("bogus"), 1.7, "x")
	require.Equal(t, GeneralInquiry, in.Name)
	require.InDelta(t, 1.0, in.Confidence, 1e-9)
	require.NotNil(t, in.Entities)
}

func TestOrderNumber(t *testing.T) {
	n, ok := OrderNumber("status of ord-20240101-0042 please")
	require.True(t, ok)
	require.Equal(t, "ORD-20240101-0042", n)

	n, ok = OrderNumber("where is order #17")
	require.True(t, ok)
	require.Equal(t, "17", n)

	n, ok = OrderNumber("order number 305")
	require.True(t, ok)
	require.Equal(t, "305", n)

	_, ok = OrderNumber("no reference here")
	require.False(t, ok)
}
