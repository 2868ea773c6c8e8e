package action

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"glass-voice/internal/builder"
	"glass-voice/internal/domain"
)

// statusKeywords maps spoken words to order statuses; the first match wins.
var statusKeywords = []struct {
	re     *regexp.Regexp
	status string
}{
	{regexp.MustCompile(`\b(cancel(l?ed)?)\b`), domain.StatusCancelled},
	{regexp.MustCompile(`\b(on hold|hold|paused?)\b`), domain.StatusOnHold},
	{regexp.MustCompile(`\b(in production|production|manufactur(e|ed|ing)|being made|processing)\b`), domain.StatusInProduction},
	{regexp.MustCompile(`\b(delivered)\b`), domain.StatusDelivered},
	{regexp.MustCompile(`\b(shipped|ship|dispatched|sent out)\b`), domain.StatusShipped},
	{regexp.MustCompile(`\b(completed?|finished|closed)\b`), domain.StatusCompleted},
	{regexp.MustCompile(`\b(ready|ready for pickup)\b`), domain.StatusReady},
	{regexp.MustCompile(`\b(pending|new|open|waiting)\b`), domain.StatusPending},
}

// StatusFromText finds a target order status in free text.
func StatusFromText(text string) (string, bool) {
	s := strings.ToLower(text)
	for _, k := range statusKeywords {
		if k.re.MatchString(s) {
			return k.status, true
		}
	}
	return "", false
}

func spokenStatus(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}

var (
	overRE     = regexp.MustCompile(`(?i)\b(?:over|above|more than|greater than|at least)\s*\$?(\d+(?:\.\d+)?)`)
	underRE    = regexp.MustCompile(`(?i)\b(?:under|below|less than|cheaper than|at most)\s*\$?(\d+(?:\.\d+)?)`)
	customerRE = regexp.MustCompile(`(?i)\b(?:for|from|customer)\s+([a-z][a-z.'&-]*(?:\s+[a-z][a-z.'&-]*)?)`)
)

// predicate is one search filter. match returns the filter and a label when
// it applies to the text.
type predicate func(text string, now time.Time) (keep func(domain.Order) bool, label string, ok bool)

// predicates are tried in order and the first that applies is used. Dates
// come before customers so "for last week" is not read as a name.
var predicates = []predicate{
	byStatus,
	byGlassType,
	byPrice,
	byDate,
	byCustomer,
}

func byStatus(text string, _ time.Time) (func(domain.Order) bool, string, bool) {
	// "new" only counts as a status in search phrasing, not "new order".
	status, ok := StatusFromText(strings.ReplaceAll(strings.ToLower(text), "new order", ""))
	if !ok {
		return nil, "", false
	}
	return func(o domain.Order) bool { return o.Status == status }, spokenStatus(status), true
}

func byGlassType(text string, _ time.Time) (func(domain.Order) bool, string, bool) {
	glass, ok := builder.ExtractGlassType(text)
	if !ok {
		return nil, "", false
	}
	return func(o domain.Order) bool { return strings.EqualFold(o.GlassType, glass) }, glass, true
}

func byPrice(text string, _ time.Time) (func(domain.Order) bool, string, bool) {
	if m := overRE.FindStringSubmatch(text); m != nil {
		limit, _ := strconv.ParseFloat(m[1], 64)
		return func(o domain.Order) bool { return o.TotalPrice > limit }, fmt.Sprintf("over $%.0f", limit), true
	}
	if m := underRE.FindStringSubmatch(text); m != nil {
		limit, _ := strconv.ParseFloat(m[1], 64)
		return func(o domain.Order) bool { return o.TotalPrice < limit }, fmt.Sprintf("under $%.0f", limit), true
	}
	return nil, "", false
}

func byDate(text string, now time.Time) (func(domain.Order) bool, string, bool) {
	s := strings.ToLower(text)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var from, to time.Time
	var label string
	switch {
	case strings.Contains(s, "today"):
		from, to, label = day, day.AddDate(0, 0, 1), "today"
	case strings.Contains(s, "yesterday"):
		from, to, label = day.AddDate(0, 0, -1), day, "yesterday"
	case strings.Contains(s, "last week"):
		from, to, label = weekStart(day).AddDate(0, 0, -7), weekStart(day), "last week"
	case strings.Contains(s, "this week"):
		from, to, label = weekStart(day), day.AddDate(0, 0, 1), "this week"
	case strings.Contains(s, "last month"):
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		from, to, label = first.AddDate(0, -1, 0), first, "last month"
	case strings.Contains(s, "this month"):
		from, to, label = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), day.AddDate(0, 0, 1), "this month"
	case strings.Contains(s, "recent"), strings.Contains(s, "latest"):
		from, to, label = day.AddDate(0, 0, -7), day.AddDate(0, 0, 1), "recent"
	default:
		return nil, "", false
	}
	return func(o domain.Order) bool {
		return !o.CreatedAt.Before(from) && o.CreatedAt.Before(to)
	}, label, true
}

func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// searchNoise are words that follow "for" in a search without naming anyone.
var searchNoise = map[string]bool{
	"all": true, "orders": true, "order": true, "me": true, "the": true, "a": true,
	"any": true, "my": true, "glass": true, "everything": true,
}

func byCustomer(text string, _ time.Time) (func(domain.Order) bool, string, bool) {
	for _, m := range customerRE.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		if len(words) == 0 || searchNoise[strings.ToLower(words[0])] {
			continue
		}
		if len(words) > 1 && searchNoise[strings.ToLower(words[1])] {
			words = words[:1]
		}
		name := strings.ToLower(strings.Join(words, " "))
		return func(o domain.Order) bool {
			return strings.Contains(strings.ToLower(o.CustomerName), name)
		}, strings.Join(words, " "), true
	}
	return nil, "", false
}

// Filter applies the first predicate that matches text and returns the kept
// orders newest first. With no matching predicate every order is returned,
// highest priority first and then newest first.
func Filter(orders []domain.Order, text string, now time.Time) ([]domain.Order, string) {
	for _, p := range predicates {
		keep, label, ok := p(text, now)
		if !ok {
			continue
		}
		out := make([]domain.Order, 0, len(orders))
		for _, o := range orders {
			if keep(o) {
				out = append(out, o)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		return out, label
	}

	out := append([]domain.Order(nil), orders...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, ""
}

// BuildReport summarizes orders for the report generator.
func BuildReport(title string, orders []domain.Order, now time.Time) domain.ReportData {
	data := domain.ReportData{
		Title:       title,
		GeneratedAt: now,
		Orders:      orders,
		ByStatus:    make(map[string]int),
	}
	for _, o := range orders {
		data.ByStatus[o.Status]++
		if o.Status != domain.StatusCancelled {
			data.Revenue += o.TotalPrice
		}
	}
	data.Revenue = math.Round(data.Revenue*100) / 100
	return data
}

// spokenResults is how many matches a search reads out.
const spokenResults = 3

func (e *Executor) search(ctx context.Context, req Request) Result {
	orders, err := e.orders.ListOrders(ctx, listLimit)
	if err != nil {
		e.fail(SearchOrders, err)
		return unreachable(SearchOrders)
	}
	found, label := Filter(orders, req.Utterance, e.now())

	var sb strings.Builder
	switch {
	case len(found) == 0 && label != "":
		fmt.Fprintf(&sb, "I didn't find any %s orders.", label)
	case len(found) == 0:
		sb.WriteString("There are no orders yet.")
	case label != "":
		fmt.Fprintf(&sb, "I found %d %s %s.", len(found), label, plural("order", len(found)))
	default:
		fmt.Fprintf(&sb, "There are %d %s. Here are the most urgent.", len(found), plural("order", len(found)))
	}
	for i, o := range found {
		if i == spokenResults {
			break
		}
		fmt.Fprintf(&sb, " %s for %s, %s.", o.OrderNumber, o.CustomerName, spokenStatus(o.Status))
	}
	return Result{Action: SearchOrders, Reply: sb.String(), Data: found}
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
