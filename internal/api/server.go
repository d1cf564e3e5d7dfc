// Package api exposes the HTTP surface: ticket submission and reads,
// approval decisions, inbound email webhooks, health, and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rowanhq/ticketflow/internal/approval"
	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/email"
	"github.com/rowanhq/ticketflow/internal/ingest"
	"github.com/rowanhq/ticketflow/internal/log"
)

const maxBodyBytes = 1 << 20

// Health reports whether a backing component is usable.
type Health func(ctx context.Context) error

// Server wires the HTTP handlers over the services.
type Server struct {
	store     domain.Store
	ingest    *ingest.Service
	approvals *approval.Service

	dbHealth    Health
	queueHealth Health

	// mailgunKey enables webhook signature verification when set.
	mailgunKey string
}

// NewServer creates a Server.
func NewServer(store domain.Store, ing *ingest.Service, approvals *approval.Service,
	dbHealth, queueHealth Health, mailgunKey string) *Server {
	return &Server{
		store:       store,
		ingest:      ing,
		approvals:   approvals,
		dbHealth:    dbHealth,
		queueHealth: queueHealth,
		mailgunKey:  mailgunKey,
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tickets", s.createTicket)
	mux.HandleFunc("GET /tickets", s.listTickets)
	mux.HandleFunc("GET /tickets/{id}", s.getTicket)
	mux.HandleFunc("GET /tickets/{id}/events", s.getTicketEvents)

	mux.HandleFunc("GET /approvals", s.listApprovals)
	mux.HandleFunc("GET /approvals/{id}", s.getApproval)
	mux.HandleFunc("POST /approvals/{id}/decide", s.decideApproval)

	mux.HandleFunc("POST /webhooks/email/{provider}", s.receiveEmail)

	mux.HandleFunc("GET /dashboard/stats", s.dashboardStats)
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withRequestID(withTracing(withLogging(mux)))
}

// --- Tickets ---

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if !s.decode(w, r, &req) {
		return
	}

	ticket, _, err := s.ingest.Submit(r.Context(), ingest.Submission{
		CustomerID: req.CustomerID,
		Subject:    req.Subject,
		Body:       req.Body,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Duplicates answer 201 with the existing id; identity is the
	// idempotency surface, not the status code.
	s.writeJSON(w, http.StatusCreated, CreateTicketResponse{TicketID: ticket.ID, Status: ticket.Status})
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	filter := domain.TicketFilter{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TicketStatus(raw)
		if !status.Valid() {
			s.writeErrorMsg(w, r, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = status
	}

	tickets, total, err := s.store.ListTickets(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := TicketListResponse{
		Tickets:  make([]TicketResponse, 0, len(tickets)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, toTicketResponse(t))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ticket, err := s.store.GetTicket(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTicketResponse(ticket))
}

func (s *Server) getTicketEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	// 404 for unknown tickets rather than an empty log.
	if _, err := s.store.GetTicket(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]TicketEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, TicketEventResponse{
			ID:        e.ID,
			EventType: e.EventType,
			StepName:  e.StepName,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- Approvals ---

func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := s.approvals.ListPending(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		resp = append(resp, toApprovalResponse(a))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	a, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toApprovalResponse(a))
}

func (s *Server) decideApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req DecideApprovalRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.approvals.Decide(r.Context(), id, domain.ApprovalDecision{
		Approved:  *req.Approved,
		DecidedBy: req.DecidedBy,
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, DecideApprovalResponse{
		ApprovalID:     out.Approval.ID,
		TicketID:       out.Approval.TicketID,
		Status:         out.Approval.Status,
		ActionExecuted: out.ActionExecuted,
		Message:        out.Message,
	})
}

// --- Email webhooks ---

func (s *Server) receiveEmail(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	in, err := s.parseInbound(r, provider)
	if err != nil {
		if errors.Is(err, errBadSignature) {
			s.writeErrorMsg(w, r, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
		log.Warn(log.CatEmail, "webhook parse failed", "provider", provider, "error", err.Error())
		s.writeErrorMsg(w, r, http.StatusBadRequest,
			fmt.Sprintf("failed to parse %s email: %v", provider, err))
		return
	}

	ticket, created, err := s.ingest.SubmitEmail(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	s.writeJSON(w, status, CreateTicketResponse{TicketID: ticket.ID, Status: ticket.Status})
}

var errBadSignature = errors.New("bad signature")

func (s *Server) parseInbound(r *http.Request, provider string) (*email.Inbound, error) {
	switch provider {
	case "sendgrid":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			if err := r.ParseForm(); err != nil {
				return nil, err
			}
		}
		return email.ParseSendGrid(email.Fields(r.Form)), nil

	case "mailgun":
		if s.mailgunKey != "" {
			ok := email.VerifyMailgunSignature(s.mailgunKey,
				r.Header.Get("X-Mailgun-Timestamp"),
				r.Header.Get("X-Mailgun-Token"),
				r.Header.Get("X-Mailgun-Signature"))
			if !ok {
				return nil, errBadSignature
			}
		}
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			if err := r.ParseForm(); err != nil {
				return nil, err
			}
		}
		return email.ParseMailgun(email.Fields(r.Form)), nil

	case "postmark":
		return email.ParsePostmark(readBody(r))

	case "generic":
		return email.ParseGeneric(readBody(r))

	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// --- Dashboard, health ---

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pending, err := s.approvals.ListPending(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	s.writeJSON(w, http.StatusOK, DashboardStatsResponse{
		TotalTickets:            total,
		PendingTickets:          counts[domain.StatusPending],
		ProcessingTickets:       counts[domain.StatusProcessing],
		AwaitingApprovalTickets: counts[domain.StatusAwaitingApproval],
		CompletedTickets:        counts[domain.StatusCompleted],
		FailedTickets:           counts[domain.StatusFailedPermanent],
		PendingApprovals:        len(pending),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Database: "healthy", Queue: "healthy"}

	if err := s.dbHealth(r.Context()); err != nil {
		log.Warn(log.CatAPI, "database health check failed", "error", err.Error())
		resp.Database = "unhealthy"
	}
	if err := s.queueHealth(r.Context()); err != nil {
		log.Warn(log.CatAPI, "queue health check failed", "error", err.Error())
		resp.Queue = "unhealthy"
	}

	status := http.StatusOK
	if resp.Database != "healthy" || resp.Queue != "healthy" {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// --- Helpers ---

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeErrorMsg(w, r, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// decode unmarshals and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.writeErrorMsg(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			s.writeErrorMsg(w, r, http.StatusBadRequest,
				fmt.Sprintf("invalid field %s (%s)", verrs[0].Field(), verrs[0].Tag()))
		} else {
			s.writeErrorMsg(w, r, http.StatusBadRequest, "invalid request")
		}
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn(log.CatAPI, "failed to encode response", "error", err.Error())
	}
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		s.writeErrorMsg(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrTicketNotFound), errors.Is(err, domain.ErrApprovalNotFound):
		s.writeErrorMsg(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyDecided):
		s.writeErrorMsg(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrBrokerUnavailable):
		log.ErrorErr(log.CatAPI, "backend unavailable", err)
		s.writeErrorMsg(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		log.ErrorErr(log.CatAPI, "unhandled error", err)
		s.writeErrorMsg(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeErrorMsg(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID(r.Context())})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
