package domain

import (
	"errors"
	"time"
)

// ErrOrderNotFound is returned by order services for an unknown order number.
var ErrOrderNotFound = errors.New("order not found")

// Order statuses understood by the order service.
const (
	StatusPending      = "pending"
	StatusInProduction = "in_production"
	StatusReady        = "ready"
	StatusShipped      = "shipped"
	StatusDelivered    = "delivered"
	StatusCompleted    = "completed"
	StatusCancelled    = "cancelled"
	StatusOnHold       = "on_hold"
)

// Order is the glass order as stored by the order service.
type Order struct {
	ID           string    `json:"id,omitempty"`
	OrderNumber  string    `json:"orderNumber"`
	CustomerID   string    `json:"customerId,omitempty"`
	CustomerName string    `json:"customerName"`
	GlassType    string    `json:"glassType"`
	Width        float64   `json:"width"`
	Height       float64   `json:"height"`
	Thickness    float64   `json:"thickness,omitempty"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"unitPrice"`
	TotalPrice   float64   `json:"totalPrice"`
	Status       string    `json:"status"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Customer is a person or company orders are placed for.
type Customer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ReportData is the structured input for the report generator.
type ReportData struct {
	Title       string         `json:"title"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Orders      []Order        `json:"orders"`
	ByStatus    map[string]int `json:"byStatus"`
	Revenue     float64        `json:"revenue"`
}

// Document is a generated PDF or report.
type Document struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
