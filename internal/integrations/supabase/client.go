// Package supabase implements the order and customer service over Supabase
// PostgREST tables.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"glass-voice/internal/domain"
)

const (
	ordersTable    = "orders"
	customersTable = "customers"
	orderPrefix    = "ORD-"
)

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	CacheTTL time.Duration // Default: 5 minutes
}

// rest is satisfied by *supabase.Client and *postgrest.Client.
type rest interface {
	From(table string) *postgrest.QueryBuilder
}

// Client implements action.OrderStore.
type Client struct {
	rest     rest
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	customers map[string]customerEntry
}

type customerEntry struct {
	value     domain.Customer
	expiresAt time.Time
}

type orderRow struct {
	ID           string     `json:"id,omitempty"`
	OrderNumber  string     `json:"order_number"`
	CustomerID   string     `json:"customer_id,omitempty"`
	CustomerName string     `json:"customer_name"`
	GlassType    string     `json:"glass_type"`
	Width        float64    `json:"width"`
	Height       float64    `json:"height"`
	Thickness    float64    `json:"thickness,omitempty"`
	Quantity     int        `json:"quantity"`
	UnitPrice    float64    `json:"unit_price"`
	TotalPrice   float64    `json:"total_price"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

type customerRow struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return newClient(client, cfg.CacheTTL), nil
}

func newClient(r rest, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		rest:      r,
		cacheTTL:  ttl,
		now:       time.Now,
		customers: make(map[string]customerEntry),
	}
}

func (c *Client) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	row := toRow(order)
	row.ID = ""
	if row.Status == "" {
		row.Status = domain.StatusPending
	}

	var created []orderRow
	_, err := c.rest.From(ordersTable).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&created)
	if err != nil {
		return domain.Order{}, fmt.Errorf("supabase: create order: %w", err)
	}
	if len(created) == 0 {
		return domain.Order{}, errors.New("supabase: create order: no row returned")
	}
	return created[0].toDomain(), nil
}

func (c *Client) GetOrderByNumber(ctx context.Context, number string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	var rows []orderRow
	_, err := c.rest.From(ordersTable).
		Select("*", "", false).
		Eq("order_number", normalizeNumber(number)).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Order{}, fmt.Errorf("supabase: get order %s: %w", number, err)
	}
	if len(rows) == 0 {
		return domain.Order{}, fmt.Errorf("supabase: order %s: %w", number, domain.ErrOrderNotFound)
	}
	return rows[0].toDomain(), nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, number, status string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	var rows []orderRow
	_, err := c.rest.From(ordersTable).
		Update(map[string]string{"status": status}, "representation", "").
		Eq("order_number", normalizeNumber(number)).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Order{}, fmt.Errorf("supabase: update order %s: %w", number, err)
	}
	if len(rows) == 0 {
		return domain.Order{}, fmt.Errorf("supabase: order %s: %w", number, domain.ErrOrderNotFound)
	}
	return rows[0].toDomain(), nil
}

// ListOrders returns up to limit orders, newest first.
func (c *Client) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []orderRow
	_, err := c.rest.From(ordersTable).
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: list orders: %w", err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// NextOrderNumber returns ORD-YYYYMMDD-NNN, one past the highest number
// issued today.
func (c *Client) NextOrderNumber(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	day := orderPrefix + c.now().UTC().Format("20060102") + "-"

	var rows []struct {
		OrderNumber string `json:"order_number"`
	}
	_, err := c.rest.From(ordersTable).
		Select("order_number", "", false).
		Like("order_number", day+"%").
		ExecuteTo(&rows)
	if err != nil {
		return "", fmt.Errorf("supabase: next order number: %w", err)
	}
	highest := 0
	for _, r := range rows {
		n, err := strconv.Atoi(strings.TrimPrefix(r.OrderNumber, day))
		if err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", day, highest+1), nil
}

// FindOrCreateCustomer matches name case-insensitively and inserts a new
// customer when none exists.
func (c *Client) FindOrCreateCustomer(ctx context.Context, name string) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Customer{}, errors.New("supabase: customer name is required")
	}
	if cached, ok := c.cachedCustomer(name); ok {
		return cached, nil
	}

	var rows []customerRow
	_, err := c.rest.From(customersTable).
		Select("*", "", false).
		Ilike("name", name).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("supabase: find customer: %w", err)
	}
	if len(rows) == 0 {
		_, err = c.rest.From(customersTable).
			Insert(customerRow{Name: name}, false, "", "representation", "").
			ExecuteTo(&rows)
		if err != nil {
			return domain.Customer{}, fmt.Errorf("supabase: create customer: %w", err)
		}
		if len(rows) == 0 {
			return domain.Customer{}, errors.New("supabase: create customer: no row returned")
		}
	}
	customer := domain.Customer(rows[0])
	c.cacheCustomer(name, customer)
	return customer, nil
}

func (c *Client) cachedCustomer(name string) (domain.Customer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.customers[strings.ToLower(name)]
	if !ok || c.now().After(entry.expiresAt) {
		return domain.Customer{}, false
	}
	return entry.value, true
}

func (c *Client) cacheCustomer(name string, customer domain.Customer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customers[strings.ToLower(name)] = customerEntry{value: customer, expiresAt: c.now().Add(c.cacheTTL)}
}

func normalizeNumber(number string) string {
	n := strings.TrimSpace(number)
	if strings.HasPrefix(strings.ToUpper(n), orderPrefix) {
		return strings.ToUpper(n)
	}
	return n
}

func toRow(o domain.Order) orderRow {
	row := orderRow{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		CustomerID:   o.CustomerID,
		CustomerName: o.CustomerName,
		GlassType:    o.GlassType,
		Width:        o.Width,
		Height:       o.Height,
		Thickness:    o.Thickness,
		Quantity:     o.Quantity,
		UnitPrice:    o.UnitPrice,
		TotalPrice:   o.TotalPrice,
		Status:       o.Status,
		Priority:     o.Priority,
	}
	if !o.CreatedAt.IsZero() {
		at := o.CreatedAt.UTC()
		row.CreatedAt = &at
	}
	return row
}

func (r orderRow) toDomain() domain.Order {
	o := domain.Order{
		ID:           r.ID,
		OrderNumber:  r.OrderNumber,
		CustomerID:   r.CustomerID,
		CustomerName: r.CustomerName,
		GlassType:    r.GlassType,
		Width:        r.Width,
		Height:       r.Height,
		Thickness:    r.Thickness,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		TotalPrice:   r.TotalPrice,
		Status:       r.Status,
		Priority:     r.Priority,
	}
	if r.CreatedAt != nil {
		o.CreatedAt = *r.CreatedAt
	}
	return o
}
