package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rowanhq/ticketflow/internal/domain"
)

// CommerceRepository implements domain.CommerceStore over the demo
// domain tables the agent tools read.
type CommerceRepository struct {
	db *sql.DB
}

// NewCommerceRepository creates a new CommerceRepository instance.
func NewCommerceRepository(db *sql.DB) *CommerceRepository {
	return &CommerceRepository{db: db}
}

// Ensure CommerceRepository implements domain.CommerceStore.
var _ domain.CommerceStore = (*CommerceRepository)(nil)

// GetOrder returns an order with its line items, or nil when absent.
func (r *CommerceRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	countOp("select", "orders")

	var (
		o                                      domain.Order
		tracking, carrier, estimated, address  sql.NullString
		created                                string
		shipped, delivered                     sql.NullString
	)
	row := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, status, total, tracking_number, carrier,
			estimated_delivery, shipping_address, created_at, shipped_at, delivered_at
		 FROM orders WHERE id = ?`, orderID)
	err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.Total, &tracking, &carrier,
		&estimated, &address, &created, &shipped, &delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("failed to get order", err)
	}

	o.TrackingNumber = tracking.String
	o.Carrier = carrier.String
	o.EstimatedDelivery = estimated.String
	o.ShippingAddress = address.String
	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if o.ShippedAt, err = parseNullTime(shipped); err != nil {
		return nil, err
	}
	if o.DeliveredAt, err = parseNullTime(delivered); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT product_name, quantity, unit_price, subtotal
		 FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, storageErr("failed to list order items", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, storageErr("failed to scan order item", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating order items", err)
	}
	return &o, nil
}

// FindCustomer looks a customer up by id or email. Returns nil when absent.
func (r *CommerceRepository) FindCustomer(ctx context.Context, idOrEmail string) (*domain.Customer, error) {
	countOp("select", "customers")

	var (
		c       domain.Customer
		created string
	)
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, tier, lifetime_value, created_at
		 FROM customers WHERE id = ? OR email = ?`, idOrEmail, idOrEmail)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Tier, &c.LifetimeValue, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("failed to find customer", err)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCustomerOrders returns the customer's most recent orders, newest first.
func (r *CommerceRepository) ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]*domain.Order, error) {
	countOp("select", "orders")

	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_id, status, total, created_at
		 FROM orders WHERE customer_id = ? ORDER BY created_at DESC LIMIT ?`,
		customerID, limit)
	if err != nil {
		return nil, storageErr("failed to list customer orders", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*domain.Order
	for rows.Next() {
		var (
			o       domain.Order
			created string
		)
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.Total, &created); err != nil {
			return nil, storageErr("failed to scan order row", err)
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating order rows", err)
	}
	return orders, nil
}

// ListCustomerTickets returns the customer's most recent tickets, newest first.
func (r *CommerceRepository) ListCustomerTickets(ctx context.Context, customerID string, limit int) ([]domain.TicketSummary, error) {
	countOp("select", "tickets")

	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject, status, created_at
		 FROM tickets WHERE customer_id = ? ORDER BY created_at DESC LIMIT ?`,
		customerID, limit)
	if err != nil {
		return nil, storageErr("failed to list customer tickets", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []domain.TicketSummary
	for rows.Next() {
		var (
			t       domain.TicketSummary
			created string
		)
		if err := rows.Scan(&t.ID, &t.Subject, (*string)(&t.Status), &created); err != nil {
			return nil, storageErr("failed to scan ticket summary", err)
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating ticket summaries", err)
	}
	return tickets, nil
}

// SearchProducts finds products by exact id or case-insensitive name match.
func (r *CommerceRepository) SearchProducts(ctx context.Context, productID, nameSearch string, limit int) ([]*domain.Product, error) {
	countOp("select", "products")

	if limit <= 0 {
		limit = 5
	}
	query := `SELECT id, name, description, price, category, in_stock FROM products`
	var args []any
	switch {
	case productID != "":
		query += ` WHERE id = ?`
		args = append(args, productID)
	case nameSearch != "":
		query += ` WHERE name LIKE ? COLLATE NOCASE`
		args = append(args, "%"+nameSearch+"%")
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to search products", err)
	}
	defer func() { _ = rows.Close() }()

	var products []*domain.Product
	for rows.Next() {
		var (
			p           domain.Product
			description sql.NullString
			category    sql.NullString
			inStock     int
		)
		if err := rows.Scan(&p.ID, &p.Name, &description, &p.Price, &category, &inStock); err != nil {
			return nil, storageErr("failed to scan product row", err)
		}
		p.Description = description.String
		p.Category = category.String
		p.InStock = inStock != 0
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating product rows", err)
	}
	return products, nil
}

// SearchHelpArticles finds articles by category and/or a term matched
// against title and content.
func (r *CommerceRepository) SearchHelpArticles(ctx context.Context, category, searchTerm string, limit int) ([]*domain.HelpArticle, error) {
	countOp("select", "help_articles")

	if limit <= 0 {
		limit = 5
	}
	query := `SELECT id, title, content, category, keywords FROM help_articles`
	var (
		clauses []string
		args    []any
	)
	if category != "" {
		clauses = append(clauses, `category = ?`)
		args = append(args, category)
	}
	if searchTerm != "" {
		clauses = append(clauses, `(title LIKE ? COLLATE NOCASE OR content LIKE ? COLLATE NOCASE)`)
		pattern := "%" + searchTerm + "%"
		args = append(args, pattern, pattern)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to search help articles", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []*domain.HelpArticle
	for rows.Next() {
		var (
			a        domain.HelpArticle
			keywords sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Category, &keywords); err != nil {
			return nil, storageErr("failed to scan help article row", err)
		}
		if keywords.Valid && keywords.String != "" {
			if err := json.Unmarshal([]byte(keywords.String), &a.Keywords); err != nil {
				return nil, storageErr("failed to unmarshal article keywords", err)
			}
		}
		articles = append(articles, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating help article rows", err)
	}
	return articles, nil
}
