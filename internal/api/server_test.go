package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rowanhq/ticketflow/internal/api"
	"github.com/rowanhq/ticketflow/internal/approval"
	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/ingest"
	"github.com/rowanhq/ticketflow/internal/queue"
	"github.com/rowanhq/ticketflow/internal/store/sqlite"
	"github.com/rowanhq/ticketflow/internal/testutil"
	"github.com/rowanhq/ticketflow/internal/tools"
)

type fixture struct {
	store  *sqlite.Store
	broker *queue.Memory
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewTestStore(t)
	broker := queue.NewMemory()

	registry := tools.NewEmptyRegistry()
	registry.Register(tools.Tool{
		Name:             "process_refund",
		RequiresApproval: true,
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"success": true}, nil
		},
	})

	srv := api.NewServer(
		store,
		ingest.NewService(store, broker),
		approval.NewService(store, registry),
		store.Health,
		broker.Health,
		"",
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{store: store, broker: broker, srv: ts}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/tickets", api.CreateTicketRequest{
		CustomerID: "cust_john_doe",
		Subject:    "Order never arrived",
		Body:       "It has been two weeks.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	created := decodeBody[api.CreateTicketResponse](t, resp)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Len(t, f.broker.Pending(), 1)

	// Identical resubmission returns 201 with the same ticket id and
	// does not enqueue a second envelope.
	resp = f.postJSON(t, "/tickets", api.CreateTicketRequest{
		CustomerID: "cust_john_doe",
		Subject:    "Order never arrived",
		Body:       "It has been two weeks.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	dup := decodeBody[api.CreateTicketResponse](t, resp)
	assert.Equal(t, created.TicketID, dup.TicketID)
	assert.Len(t, f.broker.Pending(), 1)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  api.CreateTicketRequest
	}{
		{"missing customer", api.CreateTicketRequest{Subject: "s", Body: "b"}},
		{"missing subject", api.CreateTicketRequest{CustomerID: "c", Body: "b"}},
		{"missing body", api.CreateTicketRequest{CustomerID: "c", Subject: "s"}},
		{"subject too long", api.CreateTicketRequest{CustomerID: "c", Subject: strings.Repeat("x", 501), Body: "b"}},
		{"body too long", api.CreateTicketRequest{CustomerID: "c", Subject: "s", Body: strings.Repeat("x", 10001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.postJSON(t, "/tickets", tc.req)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	// Malformed JSON.
	resp, err := http.Post(f.srv.URL+"/tickets", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTicket(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/tickets", api.CreateTicketRequest{
		CustomerID: "cust_john_doe", Subject: "s", Body: "b",
	})
	created := decodeBody[api.CreateTicketResponse](t, resp)

	resp = f.get(t, "/tickets/"+created.TicketID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ticket := decodeBody[api.TicketResponse](t, resp)
	assert.Equal(t, "cust_john_doe", ticket.CustomerID)
	assert.Equal(t, domain.ChannelHTTP, ticket.Channel)

	resp = f.get(t, "/tickets/"+uuid.NewString())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.get(t, "/tickets/not-a-uuid")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListTickets(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		resp := f.postJSON(t, "/tickets", api.CreateTicketRequest{
			CustomerID: "cust_john_doe",
			Subject:    fmt.Sprintf("subject %d", i),
			Body:       "body",
		})
		resp.Body.Close()
	}

	resp := f.get(t, "/tickets?page=1&page_size=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[api.TicketListResponse](t, resp)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Tickets, 2)

	resp = f.get(t, "/tickets?status=completed")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decodeBody[api.TicketListResponse](t, resp)
	assert.Zero(t, page.Total)

	resp = f.get(t, "/tickets?status=bogus")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTicketEvents(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/tickets", api.CreateTicketRequest{
		CustomerID: "cust_john_doe", Subject: "s", Body: "b",
	})
	created := decodeBody[api.CreateTicketResponse](t, resp)

	resp = f.get(t, "/tickets/"+created.TicketID.String()+"/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decodeBody[[]api.TicketEventResponse](t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCreated, events[0].EventType)

	resp = f.get(t, "/tickets/"+uuid.NewString()+"/events")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// pauseTicket seeds an awaiting_approval ticket with a pending request.
func pauseTicket(t *testing.T, store *sqlite.Store) *domain.ApprovalRequest {
	t.Helper()
	ctx := context.Background()

	ticket, err := store.CreateTicket(ctx, &domain.Ticket{
		ID:         uuid.New(),
		CustomerID: "cust_john_doe",
		Subject:    "Refund",
		Body:       "Please refund.",
	})
	require.NoError(t, err)

	status := domain.StatusAwaitingApproval
	_, err = store.UpdateTicket(ctx, ticket.ID, domain.TicketPatch{Status: &status}, ticket.Version)
	require.NoError(t, err)

	req, err := store.CreateApproval(ctx, &domain.ApprovalRequest{
		TicketID:     ticket.ID,
		ActionType:   "process_refund",
		ActionParams: map[string]any{"order_id": "ord_12345", "amount": 50.0},
	})
	require.NoError(t, err)
	return req
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t)
	req := pauseTicket(t, f.store)

	resp := f.get(t, "/approvals")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decodeBody[[]api.ApprovalResponse](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	resp = f.get(t, "/approvals/"+req.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[api.ApprovalResponse](t, resp)
	assert.Equal(t, domain.ApprovalPending, got.Status)

	approved := true
	resp = f.postJSON(t, "/approvals/"+req.ID.String()+"/decide", api.DecideApprovalRequest{
		Approved:  &approved,
		DecidedBy: "agent_smith",
		Reason:    "within policy",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decision := decodeBody[api.DecideApprovalResponse](t, resp)
	assert.Equal(t, domain.ApprovalApproved, decision.Status)
	assert.True(t, decision.ActionExecuted)

	// A second decision conflicts.
	rejected := false
	resp = f.postJSON(t, "/approvals/"+req.ID.String()+"/decide", api.DecideApprovalRequest{
		Approved: &rejected, DecidedBy: "agent_jones",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The ticket settled.
	ticket, err := f.store.GetTicket(context.Background(), req.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, ticket.Status)
}

func TestDecideApprovalValidation(t *testing.T) {
	f := newFixture(t)
	req := pauseTicket(t, f.store)

	// Missing approved flag.
	resp := f.postJSON(t, "/approvals/"+req.ID.String()+"/decide",
		map[string]any{"decided_by": "agent_smith"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown approval.
	approved := true
	resp = f.postJSON(t, "/approvals/"+uuid.NewString()+"/decide", api.DecideApprovalRequest{
		Approved: &approved, DecidedBy: "agent_smith",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEmailWebhookGeneric(t *testing.T) {
	f := newFixture(t)

	payload := map[string]any{
		"from":       "John Doe <john@example.com>",
		"to":         "support@rowan.example",
		"subject":    "Help with my order",
		"text":       "It arrived broken.",
		"message_id": "<m1@mail.example.com>",
	}
	resp := f.postJSON(t, "/webhooks/email/generic", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[api.CreateTicketResponse](t, resp)
	assert.Equal(t, domain.StatusPending, created.Status)

	ticket, err := f.store.GetTicket(context.Background(), created.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelEmail, ticket.Channel)
	assert.Equal(t, "john@example.com", ticket.CustomerID)

	// Redelivery of the same message is a no-op.
	resp = f.postJSON(t, "/webhooks/email/generic", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dup := decodeBody[api.CreateTicketResponse](t, resp)
	assert.Equal(t, created.TicketID, dup.TicketID)
	assert.Len(t, f.broker.Pending(), 1)
}

func TestEmailWebhookSendGridForm(t *testing.T) {
	f := newFixture(t)

	form := url.Values{}
	form.Set("from", "Jane <jane@example.com>")
	form.Set("subject", "Broken keyboard")
	form.Set("text", "Keys are sticking.")
	form.Set("headers", "Message-ID: <sg1@mail.example.com>")

	resp, err := http.Post(f.srv.URL+"/webhooks/email/sendgrid",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[api.CreateTicketResponse](t, resp)
	ticket, err := f.store.GetTicket(context.Background(), created.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", ticket.CustomerID)
	assert.Equal(t, "<sg1@mail.example.com>", ticket.Metadata["message_id"])
}

func TestEmailWebhookErrors(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/webhooks/email/generic",
		"application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(f.srv.URL+"/webhooks/email/unknown",
		"application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmailWebhookMailgunSignature(t *testing.T) {
	store := testutil.NewTestStore(t)
	broker := queue.NewMemory()
	srv := api.NewServer(store,
		ingest.NewService(store, broker),
		approval.NewService(store, tools.NewEmptyRegistry()),
		store.Health, broker.Health, "whsec_test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	form := url.Values{}
	form.Set("sender", "jane@example.com")
	form.Set("subject", "Refund please")
	form.Set("body-plain", "I want a refund.")
	form.Set("Message-Id", "<mg1@mail.example.com>")

	send := func(timestamp, token, signature string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/email/mailgun",
			strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Mailgun-Timestamp", timestamp)
		req.Header.Set("X-Mailgun-Token", token)
		req.Header.Set("X-Mailgun-Signature", signature)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	// Wrong signature is rejected before any parsing.
	resp := send("1724500000", "token123", "deadbeef")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte("1724500000token123"))
	resp = send("1724500000", "token123", hex.EncodeToString(mac.Sum(nil)))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[api.CreateTicketResponse](t, resp)

	ticket, err := store.GetTicket(context.Background(), created.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", ticket.CustomerID)
}

func TestDashboardStats(t *testing.T) {
	f := newFixture(t)
	pauseTicket(t, f.store)

	resp := f.postJSON(t, "/tickets", api.CreateTicketRequest{
		CustomerID: "cust_john_doe", Subject: "s", Body: "b",
	})
	resp.Body.Close()

	resp = f.get(t, "/dashboard/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[api.DashboardStatsResponse](t, resp)
	assert.Equal(t, 2, stats.TotalTickets)
	assert.Equal(t, 1, stats.PendingTickets)
	assert.Equal(t, 1, stats.AwaitingApprovalTickets)
	assert.Equal(t, 1, stats.PendingApprovals)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeBody[api.HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Database)
	assert.Equal(t, "healthy", health.Queue)
}

func TestHealthUnhealthyQueue(t *testing.T) {
	store := testutil.NewTestStore(t)
	broker := queue.NewMemory()
	require.NoError(t, broker.Close())

	srv := api.NewServer(store,
		ingest.NewService(store, broker),
		approval.NewService(store, tools.NewEmptyRegistry()),
		store.Health, broker.Health, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	health := decodeBody[api.HealthResponse](t, resp)
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy", health.Queue)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/metrics")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	f := newFixture(t)
	resp := f.get(t, "/health")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	span := spans[len(spans)-1]
	assert.Equal(t, "GET /health", span.Name())
	assert.Contains(t, span.Attributes(),
		attribute.Int("http.response.status_code", http.StatusOK))
}
