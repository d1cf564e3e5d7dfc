package domain

import (
	"context"
	"time"
)

// Customer is a support customer record the tools read.
type Customer struct {
	ID            string
	Name          string
	Email         string
	Tier          string
	LifetimeValue float64
	CreatedAt     time.Time
}

// Product is a catalog entry.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Category    string
	InStock     bool
}

// Order is a customer order with its line items.
type Order struct {
	ID                string
	CustomerID        string
	Status            string
	Total             float64
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery string
	ShippingAddress   string
	CreatedAt         time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	Items             []OrderItem
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductName string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
}

// HelpArticle is an FAQ entry the agent can search.
type HelpArticle struct {
	ID       int64
	Title    string
	Content  string
	Category string
	Keywords []string
}

// TicketSummary is a compact view of a past ticket, used for customer history.
type TicketSummary struct {
	ID        string
	Subject   string
	Status    TicketStatus
	CreatedAt time.Time
}

// CommerceStore reads the domain tables backing the agent tools.
type CommerceStore interface {
	// GetOrder returns the order with items loaded, or ErrTicketNotFound-free
	// nil when absent (tools report missing orders as tool-level errors).
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// FindCustomer looks a customer up by id or email. Returns nil when absent.
	FindCustomer(ctx context.Context, idOrEmail string) (*Customer, error)

	// ListCustomerOrders returns the customer's most recent orders, newest first.
	ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]*Order, error)

	// ListCustomerTickets returns the customer's most recent tickets, newest first.
	ListCustomerTickets(ctx context.Context, customerID string, limit int) ([]TicketSummary, error)

	// SearchProducts finds products by exact id or case-insensitive name match.
	SearchProducts(ctx context.Context, productID, nameSearch string, limit int) ([]*Product, error)

	// SearchHelpArticles finds articles by category and/or a term matched
	// against title and content.
	SearchHelpArticles(ctx context.Context, category, searchTerm string, limit int) ([]*HelpArticle, error)
}
