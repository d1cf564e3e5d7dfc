package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/log"
)

// Deps are the backing services the tool set operates on.
type Deps struct {
	Commerce domain.CommerceStore
	Issues   IssueCreator
}

// NewRegistry builds the full tool set. Help article lookups are served
// through a short-lived read-through cache since the FAQ corpus changes
// rarely and the agent tends to query it repeatedly.
func NewRegistry(deps Deps) *Registry {
	r := NewEmptyRegistry()
	articleCache := cache.New(5*time.Minute, 10*time.Minute)

	r.Register(Tool{
		Name: "query_help_articles",
		Description: "Search the help articles and FAQ database. Use this to find " +
			"documentation or FAQs that answer a customer's question. " +
			"Filter by category or search by term.",
		Properties: map[string]any{
			"category": map[string]any{
				"type":        "string",
				"description": "Optional category filter ('account', 'orders', 'technical', 'billing', 'shipping')",
			},
			"search_term": map[string]any{
				"type":        "string",
				"description": "Optional text to search for in article titles and content",
			},
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			category := stringArg(args, "category")
			term := stringArg(args, "search_term")

			key := category + "|" + term
			if cached, ok := articleCache.Get(key); ok {
				return cached.(map[string]any), nil
			}

			articles, err := deps.Commerce.SearchHelpArticles(ctx, category, term, 5)
			if err != nil {
				return failure(err.Error()), nil
			}

			items := make([]map[string]any, 0, len(articles))
			for _, a := range articles {
				items = append(items, map[string]any{
					"title":    a.Title,
					"content":  a.Content,
					"category": a.Category,
				})
			}
			result := map[string]any{
				"success":         true,
				"articles":        items,
				"count":           len(items),
				"category_filter": category,
				"search_term":     term,
			}
			articleCache.SetDefault(key, result)
			return result, nil
		},
	})

	r.Register(Tool{
		Name: "check_order_status",
		Description: "Look up the current status of a customer order. Use this when a " +
			"customer asks about order status, shipping, or delivery.",
		Properties: map[string]any{
			"order_id": map[string]any{
				"type":        "string",
				"description": "The order ID to look up (e.g., 'ord_12345')",
			},
		},
		Required: []string{"order_id"},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			orderID := stringArg(args, "order_id")
			if orderID == "" {
				return failure("Order ID is required"), nil
			}

			order, err := deps.Commerce.GetOrder(ctx, orderID)
			if err != nil {
				return failure(err.Error()), nil
			}
			if order == nil {
				return map[string]any{
					"success": false,
					"error":   fmt.Sprintf("Order %s not found", orderID),
					"order":   nil,
				}, nil
			}

			items := make([]map[string]any, 0, len(order.Items))
			for _, item := range order.Items {
				items = append(items, map[string]any{
					"name":     item.ProductName,
					"quantity": item.Quantity,
					"price":    item.UnitPrice,
					"subtotal": item.Subtotal,
				})
			}
			return map[string]any{
				"success": true,
				"order": map[string]any{
					"order_id":           order.ID,
					"status":             order.Status,
					"total":              order.Total,
					"items":              items,
					"tracking_number":    order.TrackingNumber,
					"carrier":            order.Carrier,
					"estimated_delivery": order.EstimatedDelivery,
					"shipping_address":   order.ShippingAddress,
					"created_at":         order.CreatedAt,
					"shipped_at":         order.ShippedAt,
					"delivered_at":       order.DeliveredAt,
				},
			}, nil
		},
	})

	r.Register(Tool{
		Name: "get_customer_history",
		Description: "Fetch customer information including recent orders and support " +
			"history, for context-aware support.",
		Properties: map[string]any{
			"customer_id": map[string]any{
				"type":        "string",
				"description": "The customer ID or email to look up",
			},
		},
		Required: []string{"customer_id"},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			customerID := stringArg(args, "customer_id")

			customer, err := deps.Commerce.FindCustomer(ctx, customerID)
			if err != nil {
				return failure(err.Error()), nil
			}

			summaries, err := deps.Commerce.ListCustomerTickets(ctx, customerID, 5)
			if err != nil {
				return failure(err.Error()), nil
			}
			tickets := make([]map[string]any, 0, len(summaries))
			for _, t := range summaries {
				tickets = append(tickets, map[string]any{
					"id":         t.ID,
					"subject":    t.Subject,
					"status":     string(t.Status),
					"created_at": t.CreatedAt,
				})
			}

			var (
				customerInfo map[string]any
				orders       []map[string]any
			)
			if customer != nil {
				customerInfo = map[string]any{
					"id":             customer.ID,
					"name":           customer.Name,
					"email":          customer.Email,
					"tier":           customer.Tier,
					"lifetime_value": customer.LifetimeValue,
				}
				recent, err := deps.Commerce.ListCustomerOrders(ctx, customer.ID, 5)
				if err != nil {
					return failure(err.Error()), nil
				}
				for _, o := range recent {
					orders = append(orders, map[string]any{
						"order_id":   o.ID,
						"status":     o.Status,
						"total":      o.Total,
						"created_at": o.CreatedAt,
					})
				}
			}

			return map[string]any{
				"success":     true,
				"customer":    customerInfo,
				"tickets":     tickets,
				"orders":      orders,
				"customer_id": customerID,
			}, nil
		},
	})

	r.Register(Tool{
		Name: "lookup_product",
		Description: "Look up product information by ID or name, such as price, " +
			"availability, or description.",
		Properties: map[string]any{
			"product_id": map[string]any{
				"type":        "string",
				"description": "The product ID to look up (e.g., 'prod_wh1000')",
			},
			"name_search": map[string]any{
				"type":        "string",
				"description": "Search term to find products by name",
			},
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			productID := stringArg(args, "product_id")
			nameSearch := stringArg(args, "name_search")
			if productID == "" && nameSearch == "" {
				return failure("Either product_id or name_search is required"), nil
			}

			products, err := deps.Commerce.SearchProducts(ctx, productID, nameSearch, 5)
			if err != nil {
				return failure(err.Error()), nil
			}
			if len(products) == 0 {
				return map[string]any{
					"success":  false,
					"error":    "No products found",
					"products": []any{},
				}, nil
			}

			items := make([]map[string]any, 0, len(products))
			for _, p := range products {
				items = append(items, map[string]any{
					"id":          p.ID,
					"name":        p.Name,
					"description": p.Description,
					"price":       p.Price,
					"category":    p.Category,
					"in_stock":    p.InStock,
				})
			}
			return map[string]any{
				"success":  true,
				"products": items,
				"count":    len(items),
			}, nil
		},
	})

	r.Register(Tool{
		Name: "reset_password",
		Description: "Send a password reset email to the user. Use this when a customer " +
			"cannot log in or has forgotten their password.",
		Properties: map[string]any{
			"user_email": map[string]any{
				"type":        "string",
				"description": "The email address of the user who needs a password reset",
			},
		},
		Required: []string{"user_email"},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			email := stringArg(args, "user_email")
			if email == "" || !strings.Contains(email, "@") {
				return failure("Valid email address is required"), nil
			}

			// Stubbed: a real deployment hands this to the auth system.
			log.Info(log.CatTools, "password reset initiated", "user_email", email)
			return map[string]any{
				"success":    true,
				"message":    fmt.Sprintf("Password reset email sent to %s", email),
				"email":      email,
				"expires_in": "24 hours",
			}, nil
		},
	})

	r.Register(Tool{
		Name: "process_refund",
		Description: "Process a refund for a customer order. IMPORTANT: this action " +
			"requires human approval before execution. Use it when a customer requests " +
			"a refund for a valid reason such as a defective product, wrong item, or " +
			"service issue.",
		Properties: map[string]any{
			"order_id": map[string]any{
				"type":        "string",
				"description": "The order ID to refund",
			},
			"amount": map[string]any{
				"type":        "number",
				"description": "The refund amount in dollars",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "The reason for the refund",
			},
		},
		Required:         []string{"order_id", "amount", "reason"},
		RequiresApproval: true,
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			orderID := stringArg(args, "order_id")
			amount := floatArg(args, "amount")
			reason := stringArg(args, "reason")

			if orderID == "" {
				return failure("Order ID is required"), nil
			}
			if amount <= 0 {
				return failure("Refund amount must be positive"), nil
			}
			if reason == "" {
				return failure("Refund reason is required"), nil
			}

			// Refuse refunds above the order total when the order can be
			// verified; a lookup failure does not block the refund.
			order, err := deps.Commerce.GetOrder(ctx, orderID)
			if err == nil {
				if order == nil {
					return failure(fmt.Sprintf("Order %s not found", orderID)), nil
				}
				if amount > order.Total {
					return failure(fmt.Sprintf("Refund amount exceeds order total of $%.2f", order.Total)), nil
				}
			} else {
				log.Warn(log.CatTools, "order verification failed", "order_id", orderID, "error", err)
			}

			refundID := "ref_" + shortHex(12)
			log.Info(log.CatTools, "refund processed",
				"order_id", orderID, "amount", amount, "refund_id", refundID)
			return map[string]any{
				"success":   true,
				"refund_id": refundID,
				"order_id":  orderID,
				"amount":    amount,
				"reason":    reason,
				"status":    "processed",
				"message":   fmt.Sprintf("Refund of $%.2f processed for order %s", amount, orderID),
			}, nil
		},
	})

	r.Register(Tool{
		Name: "create_bug_report",
		Description: "Create an internal bug report for a technical problem, bug, or " +
			"system error that the engineering team should investigate.",
		Properties: map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Brief title describing the bug",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Detailed description including steps to reproduce",
			},
			"priority": map[string]any{
				"type":        "string",
				"description": "Priority level - 'low', 'medium', 'high', or 'critical'",
			},
		},
		Required: []string{"title", "description"},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			title := stringArg(args, "title")
			description := stringArg(args, "description")
			priority := stringArg(args, "priority")
			if priority == "" {
				priority = "medium"
			}

			if title == "" {
				return failure("Bug title is required"), nil
			}
			if description == "" {
				return failure("Bug description is required"), nil
			}
			switch priority {
			case "low", "medium", "high", "critical":
			default:
				return failure("Invalid priority level"), nil
			}

			if deps.Issues != nil && deps.Issues.Configured() {
				issue, err := deps.Issues.CreateIssue(ctx,
					title, issueBody(description, priority, ""), priorityLabels(priority))
				if err == nil {
					return map[string]any{
						"success":      true,
						"issue_number": issue.Number,
						"issue_url":    issue.URL,
						"title":        title,
						"priority":     priority,
						"status":       "open",
						"message":      fmt.Sprintf("Bug report created: %s", issue.URL),
					}, nil
				}
				log.Warn(log.CatTools, "github integration failed", "error", err)
			}

			bugID := "BUG-" + strings.ToUpper(shortHex(6))
			return map[string]any{
				"success":     true,
				"bug_id":      bugID,
				"title":       title,
				"description": description,
				"priority":    priority,
				"status":      "open",
				"message":     fmt.Sprintf("Bug report %s created and assigned to engineering team", bugID),
			}, nil
		},
	})

	r.Register(Tool{
		Name: "escalate_to_human",
		Description: "Escalate the ticket to a human support agent. Use this when the " +
			"issue is too complex to resolve automatically, the customer asks for a " +
			"human, or the situation requires judgment beyond your capabilities.",
		Properties: map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Why this ticket needs human review",
			},
			"suggested_action": map[string]any{
				"type":        "string",
				"description": "Your recommendation for what the human agent should do",
			},
		},
		Required: []string{"reason"},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			reason := stringArg(args, "reason")
			suggested := stringArg(args, "suggested_action")
			if reason == "" {
				return failure("Escalation reason is required"), nil
			}

			escalationID := "ESC-" + strings.ToUpper(shortHex(6))
			log.Info(log.CatTools, "ticket escalated",
				"escalation_id", escalationID, "reason", reason)
			return map[string]any{
				"success":          true,
				"escalation_id":    escalationID,
				"reason":           reason,
				"suggested_action": suggested,
				"status":           "pending_human_review",
				"message":          "Ticket has been escalated to a human support agent",
			}, nil
		},
	})

	return r
}

func shortHex(n int) string {
	id := uuid.New()
	s := fmt.Sprintf("%x", id[:])
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
