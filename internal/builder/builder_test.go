package builder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"glass-voice/internal/domain"
)

func TestNextStep(t *testing.T) {
	cases := []struct {
		glass, dims, qty, customer bool
		want                       Step
	}{
		{false, false, false, false, StepGlassType},
		{true, false, false, false, StepDimensions},
		{true, true, false, false, StepQuantity},
		{true, true, true, false, StepCustomer},
		{true, true, true, true, StepConfirm},
		{false, true, true, true, StepGlassType},
		{true, false, true, true, StepDimensions},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NextStep(tc.glass, tc.dims, tc.qty, tc.customer))
	}
}

func TestPricing(t *testing.T) {
	unit := UnitPrice(DefaultBasePrice, 500, 300, GlassTempered)
	require.Equal(t, 11.25, unit)
	require.Equal(t, 112.50, TotalPrice(unit, 10))

	require.Equal(t, 1.0, Multiplier("mystery"))
	require.Equal(t, 2.2, Multiplier(GlassInsulated))
	require.Equal(t, 86.4, UnitPrice(DefaultBasePrice, 1200, 800, GlassLaminated))
}

func TestApply_WalksEveryStep(t *testing.T) {
	b := New(0)
	require.Equal(t, StepGlassType, b.Step)
	require.Equal(t, DefaultBasePrice, b.BasePrice)

	out := b.Apply("tempered")
	require.True(t, out.Progress)
	require.Equal(t, StepDimensions, out.Step)
	require.Contains(t, out.Prompt, "tempered")

	out = b.Apply("1200 by 800")
	require.Equal(t, StepQuantity, out.Step)
	require.Equal(t, 1200.0, b.Width)
	require.Equal(t, 800.0, b.Height)

	out = b.Apply("ten")
	require.Equal(t, StepCustomer, out.Step)
	require.Equal(t, 10, b.Quantity)

	out = b.Apply("Acme Glass")
	require.Equal(t, StepConfirm, out.Step)
	require.Equal(t, "Acme Glass", b.CustomerName)
	require.Equal(t, 72.0, b.UnitPrice)
	require.Equal(t, 720.0, b.TotalPrice)
	require.Contains(t, out.Prompt, "Shall I create the order?")
	require.Contains(t, out.Prompt, "$720.00")
}

func TestApply_NoMatchRepeatsPrompt(t *testing.T) {
	b := New(50)
	b.GlassType = GlassFloat
	b.Step = StepDimensions

	first := b.Apply("hmm let me think")
	require.False(t, first.Progress)
	require.Equal(t, StepDimensions, first.Step)

	second := b.Apply("still thinking")
	require.Equal(t, first.Prompt, second.Prompt)
}

func TestApply_FillsOtherFieldsFromOneUtterance(t *testing.T) {
	b := New(50)
	out := b.Apply("laminated, 500 by 300, 4 panes for Contoso")
	require.Equal(t, StepConfirm, out.Step)
	require.Equal(t, GlassLaminated, b.GlassType)
	require.Equal(t, 4, b.Quantity)
	require.Equal(t, "Contoso", b.CustomerName)
}

func TestSeed(t *testing.T) {
	b := New(50)
	out := b.Seed("I want to place a new order for 10 tempered panes")
	require.Equal(t, StepDimensions, out.Step)
	require.Equal(t, GlassTempered, b.GlassType)
	require.Equal(t, 10, b.Quantity)
	require.Empty(t, b.CustomerName)
	require.Equal(t, []string{"dimensions", "customer name"}, b.Missing())
}

func confirming() *Builder {
	b := New(50)
	b.Seed("tempered 500 by 300, 10 pieces for Acme")
	return b
}

func TestConfirm_Yes(t *testing.T) {
	b := confirming()
	require.Equal(t, StepConfirm, b.Step)

	out := b.Apply("yes please")
	require.True(t, out.Confirmed)
	require.False(t, out.Cancelled)
	require.Equal(t, StepComplete, out.Step)
	require.True(t, b.Done())

	order := b.Order()
	require.Equal(t, domain.StatusPending, order.Status)
	require.Equal(t, 11.25, order.UnitPrice)
	require.Equal(t, 112.50, order.TotalPrice)
	require.Equal(t, "Acme", order.CustomerName)
}

func TestConfirm_No(t *testing.T) {
	b := confirming()
	out := b.Apply("no")
	require.True(t, out.Cancelled)
	require.False(t, out.Confirmed)
	require.Equal(t, StepCancelled, out.Step)
	require.True(t, b.Done())
}

func TestConfirm_NoProblemIsAffirmative(t *testing.T) {
	b := confirming()
	out := b.Apply("No problem, go ahead")
	require.True(t, out.Confirmed)
	require.False(t, out.Cancelled)
	require.Equal(t, StepComplete, out.Step)
}

func TestSeed_CountBeforeDimensions(t *testing.T) {
	b := New(50)
	b.Seed("I need 5 x 1200 by 800 tempered panes for Acme")
	require.Equal(t, StepConfirm, b.Step)
	require.Equal(t, 1200.0, b.Width)
	require.Equal(t, 800.0, b.Height)
	require.Equal(t, 5, b.Quantity)
	require.Equal(t, "Acme", b.CustomerName)
}

func TestSeed_DateIsNotCustomer(t *testing.T) {
	b := New(50)
	b.Seed("new order for Monday")
	require.Empty(t, b.CustomerName)
}

func TestConfirm_Correction(t *testing.T) {
	b := confirming()
	out := b.Apply("no, make it laminated")
	require.False(t, out.Cancelled)
	require.Equal(t, StepConfirm, out.Step)
	require.Equal(t, GlassLaminated, b.GlassType)
	require.Equal(t, 13.5, b.UnitPrice)
	require.Equal(t, 135.0, b.TotalPrice)
}

func TestConfirm_UnrelatedRepeats(t *testing.T) {
	b := confirming()
	prompt := b.Prompt()
	out := b.Apply("what's the weather like")
	require.Equal(t, StepConfirm, out.Step)
	require.Equal(t, prompt, out.Prompt)
	require.False(t, out.Progress)
}

func TestApply_TerminalIsInert(t *testing.T) {
	b := confirming()
	b.Cancel()
	out := b.Apply("tempered 1200 by 800")
	require.Equal(t, StepCancelled, out.Step)
	require.Equal(t, 500.0, b.Width)
}

func TestIsCancellation(t *testing.T) {
	for _, in := range []string{"cancel", "Stop that", "never mind", "forget it"} {
		require.True(t, IsCancellation(in), in)
	}
	for _, in := range []string{"tempered", "yes", "1200 by 800"} {
		require.False(t, IsCancellation(in), in)
	}
}
