// Package ingest turns submissions from the HTTP API and inbound email
// webhooks into pending tickets and enqueues them for processing.
// Ingestion is idempotent: identity is derived from content, so the
// same submission always lands on the same ticket.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/email"
	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/metrics"
	"github.com/rowanhq/ticketflow/internal/queue"
)

// Service accepts new tickets and hands them to the broker.
type Service struct {
	store     domain.Store
	publisher queue.Publisher
}

// NewService creates an ingestion Service.
func NewService(store domain.Store, publisher queue.Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Submission is a ticket request arriving over HTTP.
type Submission struct {
	CustomerID string
	Subject    string
	Body       string
}

// Submit creates a pending ticket and publishes its first envelope.
// Resubmitting identical content returns the existing ticket with
// created=false and publishes nothing.
func (s *Service) Submit(ctx context.Context, sub Submission) (*domain.Ticket, bool, error) {
	id := domain.TicketID(sub.CustomerID, sub.Subject, sub.Body)

	ticket, err := s.store.CreateTicket(ctx, &domain.Ticket{
		ID:         id,
		CustomerID: sub.CustomerID,
		Subject:    sub.Subject,
		Body:       sub.Body,
		Channel:    domain.ChannelHTTP,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, getErr := s.store.GetTicket(ctx, id)
			if getErr != nil {
				return nil, false, getErr
			}
			log.Info(log.CatIngest, "duplicate ticket request", "ticket_id", id)
			metrics.TicketsCreated.WithLabelValues("duplicate").Inc()
			return existing, false, nil
		}
		return nil, false, err
	}

	if err := s.enqueue(ctx, ticket, map[string]any{
		"customer_id": sub.CustomerID,
		"subject":     sub.Subject,
	}); err != nil {
		return nil, false, err
	}

	log.Info(log.CatIngest, "ticket created",
		"ticket_id", ticket.ID, "customer_id", sub.CustomerID)
	return ticket, true, nil
}

// SubmitEmail creates a ticket from a parsed inbound email. A reply to
// a message we already ticketed is appended to that ticket's event log
// instead of opening a new one; duplicate deliveries of the same email
// return the existing ticket.
func (s *Service) SubmitEmail(ctx context.Context, in *email.Inbound) (*domain.Ticket, bool, error) {
	if in.FromEmail == "" {
		return nil, false, fmt.Errorf("%w: missing sender address", domain.ErrValidation)
	}

	if in.InReplyTo != "" {
		existing, err := s.store.FindTicketByMessageID(ctx, in.InReplyTo)
		switch {
		case err == nil:
			return existing, false, s.appendThreadReply(ctx, existing, in)
		case !errors.Is(err, domain.ErrTicketNotFound):
			return nil, false, err
		}
	}

	id := domain.EmailTicketID(in.MessageID, in.FromEmail, in.Subject)

	subject := in.Subject
	if subject == "" {
		subject = "(No subject)"
	}
	body := in.Body
	if body == "" {
		body = in.HTML
	}
	if body == "" {
		body = "(Empty email)"
	}

	attachments := make([]map[string]any, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		attachments = append(attachments, map[string]any{
			"filename":     a.Filename,
			"content_type": a.ContentType,
		})
	}

	ticket, err := s.store.CreateTicket(ctx, &domain.Ticket{
		ID:         id,
		CustomerID: strings.ToLower(strings.TrimSpace(in.FromEmail)),
		Subject:    subject,
		Body:       body,
		Channel:    domain.ChannelEmail,
		Metadata: map[string]any{
			"message_id":  in.MessageID,
			"from_email":  in.FromEmail,
			"from_name":   in.FromName,
			"to_email":    in.ToEmail,
			"in_reply_to": in.InReplyTo,
			"attachments": attachments,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, getErr := s.store.GetTicket(ctx, id)
			if getErr != nil {
				return nil, false, getErr
			}
			log.Info(log.CatIngest, "duplicate email ticket",
				"ticket_id", id, "message_id", in.MessageID)
			metrics.TicketsCreated.WithLabelValues("duplicate").Inc()
			return existing, false, nil
		}
		return nil, false, err
	}

	if err := s.enqueue(ctx, ticket, map[string]any{
		"channel":    string(domain.ChannelEmail),
		"from":       in.FromEmail,
		"subject":    in.Subject,
		"message_id": in.MessageID,
	}); err != nil {
		return nil, false, err
	}

	log.Info(log.CatIngest, "email ticket created",
		"ticket_id", ticket.ID, "from_email", in.FromEmail, "subject", in.Subject)
	return ticket, true, nil
}

// enqueue appends the created event and publishes attempt 0.
func (s *Service) enqueue(ctx context.Context, t *domain.Ticket, payload map[string]any) error {
	if err := s.store.AppendEvent(ctx, domain.NewCreatedEvent(t.ID, payload)); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, queue.NewEnvelope(t.ID, 0)); err != nil {
		return err
	}
	metrics.TicketsCreated.WithLabelValues("created").Inc()
	return nil
}

// appendThreadReply records an email follow-up on its original ticket.
func (s *Service) appendThreadReply(ctx context.Context, t *domain.Ticket, in *email.Inbound) error {
	preview := truncate(in.Body, 200)
	log.Info(log.CatIngest, "email thread reply",
		"ticket_id", t.ID, "message_id", in.MessageID)
	metrics.TicketsCreated.WithLabelValues("thread_reply").Inc()

	e := &domain.TicketEvent{
		ID:        uuid.New(),
		TicketID:  t.ID,
		EventType: domain.EventStatusChange,
		StepName:  "email_reply_received",
		Payload: map[string]any{
			"message_id":   in.MessageID,
			"from":         in.FromEmail,
			"subject":      in.Subject,
			"body_preview": preview,
		},
	}
	return s.store.AppendEvent(ctx, e)
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
