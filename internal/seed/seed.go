// Package seed loads demo commerce data: customers, products, orders,
// and help articles the agent tools query during demos and local runs.
package seed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rowanhq/ticketflow/internal/log"
)

type customer struct {
	id    string
	name  string
	email string
	tier  string
	ltv   float64
}

type product struct {
	id          string
	name        string
	description string
	price       float64
	category    string
}

type article struct {
	title    string
	content  string
	category string
	keywords []string
}

type orderItem struct {
	productID string
	quantity  int
}

type order struct {
	id         string
	customerID string
	status     string
	items      []orderItem
	carrier    string
	tracking   string
	ageDays    int
	shippedAgo int // 0 = not shipped
	deliverAgo int // 0 = not delivered
}

var customers = []customer{
	{"cust_john_doe", "John Doe", "john.doe@email.com", "premium", 1250.00},
	{"cust_jane_smith", "Jane Smith", "jane.smith@email.com", "vip", 5420.00},
	{"cust_bob_wilson", "Bob Wilson", "bob.wilson@email.com", "standard", 89.99},
	{"cust_alice_jones", "Alice Jones", "alice.jones@email.com", "premium", 890.00},
	{"cust_charlie_brown", "Charlie Brown", "charlie.brown@email.com", "standard", 149.99},
}

var products = []product{
	{"prod_wh1000", "Wireless Headphones Pro", "Premium noise-canceling wireless headphones with 30-hour battery life", 149.99, "electronics"},
	{"prod_kb500", "Mechanical Keyboard RGB", "Mechanical gaming keyboard with RGB lighting and Cherry MX switches", 89.99, "electronics"},
	{"prod_ms300", "Ergonomic Mouse", "Ergonomic wireless mouse with adjustable DPI", 49.99, "electronics"},
	{"prod_mon27", "27-inch 4K Monitor", "Ultra HD 4K monitor with HDR support", 399.99, "electronics"},
	{"prod_cam01", "HD Webcam 1080p", "Full HD webcam with built-in microphone", 79.99, "electronics"},
	{"prod_hub01", "USB-C Hub 7-in-1", "USB-C hub with HDMI, USB-A, SD card reader", 45.99, "accessories"},
	{"prod_stand", "Laptop Stand Aluminum", "Adjustable aluminum laptop stand for better ergonomics", 35.99, "accessories"},
	{"prod_pad01", "Mouse Pad XL", "Extra-large desk pad with stitched edges", 19.99, "accessories"},
	{"prod_cable", "Charging Cable 3-Pack", "Braided USB-C cables in 3ft, 6ft, and 10ft lengths", 24.99, "accessories"},
	{"prod_bag01", "Laptop Backpack", "Water-resistant backpack with padded laptop compartment", 59.99, "accessories"},
}

var articles = []article{
	{
		title: "How to Reset Your Password",
		content: "If you've forgotten your password: click \"Forgot Password\" on the login page, " +
			"enter your email address, and follow the reset link (expires in 24 hours). " +
			"Passwords need at least 8 characters, one uppercase letter, one number, and one special character. " +
			"If the email doesn't arrive within 5 minutes, check your spam folder.",
		category: "account",
		keywords: []string{"password", "reset", "forgot", "login", "access"},
	},
	{
		title: "Two-Factor Authentication Setup",
		content: "To enable 2FA: go to Settings > Security, click \"Enable Two-Factor Authentication\", " +
			"scan the QR code with Google Authenticator or Authy, and enter the 6-digit code to verify. " +
			"Save your backup codes; they are the only way back in if you lose your phone.",
		category: "account",
		keywords: []string{"2fa", "security", "authentication", "google authenticator"},
	},
	{
		title: "Shipping Times and Tracking",
		content: "Standard shipping takes 5-7 business days ($4.99), express 2-3 days ($12.99), " +
			"overnight next business day ($24.99). Your tracking number is in the confirmation email; " +
			"updates may take 24-48 hours to appear after shipment.",
		category: "shipping",
		keywords: []string{"shipping", "delivery", "tracking", "order status"},
	},
	{
		title: "Return and Refund Policy",
		content: "All products carry a 30-day money-back guarantee. Items must be unused and in original " +
			"packaging; refunds are processed within 5-7 business days and original shipping costs are " +
			"non-refundable. Contact support with your order number to get a prepaid return label. " +
			"Defective items are refunded in full including shipping.",
		category: "orders",
		keywords: []string{"refund", "return", "money back", "policy"},
	},
	{
		title: "Order Cancellation",
		content: "Orders can be cancelled within 1 hour of placing them from My Orders. After that the " +
			"order may already be processing; refuse delivery or request a return once it arrives. " +
			"Cancelled orders are refunded within 3-5 business days to the original payment method.",
		category: "orders",
		keywords: []string{"cancel", "cancellation", "order"},
	},
	{
		title: "Payment Failed - Troubleshooting",
		content: "Common causes of a failed payment: insufficient funds, an expired card, incorrect CVV, " +
			"a bank block, or a billing address mismatch. Try a different payment method, clear browser " +
			"cookies, disable any VPN, or ask your bank to authorize the transaction.",
		category: "billing",
		keywords: []string{"payment failed", "declined", "error", "card"},
	},
	{
		title: "App Not Loading or Crashing",
		content: "Force close and reopen the app, check your connection, clear the app cache, update to " +
			"the latest version, and restart your device. If problems persist, contact support with your " +
			"device model, OS version, and any error messages.",
		category: "technical",
		keywords: []string{"app", "crash", "loading", "bug", "error"},
	},
}

var orders = []order{
	{id: "ord_12345", customerID: "cust_john_doe", status: "shipped",
		items:   []orderItem{{"prod_wh1000", 1}, {"prod_hub01", 1}},
		carrier: "UPS", tracking: "1Z999AA1234567890", ageDays: 3, shippedAgo: 1},
	{id: "ord_11111", customerID: "cust_john_doe", status: "delivered",
		items:   []orderItem{{"prod_kb500", 1}},
		carrier: "FedEx", tracking: "748912345678", ageDays: 15, shippedAgo: 12, deliverAgo: 10},
	{id: "ord_22222", customerID: "cust_jane_smith", status: "processing",
		items: []orderItem{{"prod_mon27", 1}, {"prod_stand", 1}}, ageDays: 1},
	{id: "ord_33333", customerID: "cust_bob_wilson", status: "pending",
		items: []orderItem{{"prod_ms300", 1}, {"prod_pad01", 1}, {"prod_cable", 1}}},
	{id: "ord_44444", customerID: "cust_alice_jones", status: "shipped",
		items:   []orderItem{{"prod_cam01", 1}, {"prod_bag01", 1}},
		carrier: "USPS", tracking: "9400111899561234567890", ageDays: 5, shippedAgo: 2},
	{id: "ord_99999", customerID: "cust_charlie_brown", status: "refunded",
		items:   []orderItem{{"prod_wh1000", 1}},
		carrier: "UPS", tracking: "1Z999AA1098765432", ageDays: 20, shippedAgo: 17, deliverAgo: 14},
}

const shippingAddress = `{"street":"123 Main St","city":"San Francisco","state":"CA","zip":"94105","country":"USA"}`

// Run loads the demo dataset. Seeding is idempotent: a database that
// already has customers is left untouched.
func Run(ctx context.Context, db *sql.DB) error {
	var existing int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&existing); err != nil {
		return fmt.Errorf("failed to check for existing data: %w", err)
	}
	if existing > 0 {
		log.Info(log.CatSeed, "demo data already present, skipping", "customers", existing)
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	for _, c := range customers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customers (id, name, email, tier, lifetime_value, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.id, c.name, c.email, c.tier, c.ltv, now.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to seed customer %s: %w", c.id, err)
		}
	}

	prices := make(map[string]product, len(products))
	for _, p := range products {
		prices[p.id] = p
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, name, description, price, category, in_stock)
			 VALUES (?, ?, ?, ?, ?, 1)`,
			p.id, p.name, p.description, p.price, p.category,
		); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.id, err)
		}
	}

	for _, a := range articles {
		keywords, err := json.Marshal(a.keywords)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO help_articles (title, content, category, keywords)
			 VALUES (?, ?, ?, ?)`,
			a.title, a.content, a.category, string(keywords),
		); err != nil {
			return fmt.Errorf("failed to seed article %q: %w", a.title, err)
		}
	}

	for _, o := range orders {
		total := 0.0
		for _, item := range o.items {
			total += prices[item.productID].price * float64(item.quantity)
		}

		createdAt := now.AddDate(0, 0, -o.ageDays)
		var tracking, carrier, estimated, shippedAt, deliveredAt any
		if o.carrier != "" {
			carrier = o.carrier
			tracking = o.tracking
			estimated = createdAt.AddDate(0, 0, 7).Format("2006-01-02")
		}
		if o.shippedAgo > 0 {
			shippedAt = now.AddDate(0, 0, -o.shippedAgo).UTC().Format(time.RFC3339Nano)
		}
		if o.deliverAgo > 0 {
			deliveredAt = now.AddDate(0, 0, -o.deliverAgo).UTC().Format(time.RFC3339Nano)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, customer_id, status, total, tracking_number, carrier,
				estimated_delivery, shipping_address, created_at, shipped_at, delivered_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.id, o.customerID, o.status, total, tracking, carrier, estimated,
			shippingAddress, createdAt.UTC().Format(time.RFC3339Nano), shippedAt, deliveredAt,
		); err != nil {
			return fmt.Errorf("failed to seed order %s: %w", o.id, err)
		}

		for _, item := range o.items {
			p := prices[item.productID]
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_name, quantity, unit_price, subtotal)
				 VALUES (?, ?, ?, ?, ?)`,
				o.id, p.name, item.quantity, p.price, p.price*float64(item.quantity),
			); err != nil {
				return fmt.Errorf("failed to seed order item for %s: %w", o.id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed data: %w", err)
	}

	log.Info(log.CatSeed, "demo data seeded",
		"customers", len(customers), "products", len(products),
		"orders", len(orders), "articles", len(articles))
	return nil
}
