// Package email normalizes inbound webhook payloads from email
// providers (SendGrid, Mailgun, Postmark, plus a generic JSON shape)
// into a single Inbound form the ingestion service consumes.
package email

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Attachment describes an attachment by name and type. Content is not
// retained; tickets only record that the attachment arrived.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size,omitempty"`
}

// Inbound is a provider-independent view of one inbound email.
type Inbound struct {
	FromEmail   string
	FromName    string
	ToEmail     string
	Subject     string
	Body        string
	HTML        string
	MessageID   string
	InReplyTo   string
	References  []string
	Attachments []Attachment
	Headers     map[string]string
}

// Fields flattens form data to the first value per key, which is the
// shape the form-based providers send.
func Fields(form url.Values) map[string]string {
	fields := make(map[string]string, len(form))
	for k := range form {
		fields[k] = form.Get(k)
	}
	return fields
}

// ParseSendGrid normalizes a SendGrid Inbound Parse form post. Message
// id and threading come out of the raw headers blob SendGrid forwards.
func ParseSendGrid(fields map[string]string) *Inbound {
	fromEmail, fromName := parseAddress(fields["from"])
	headers := parseRawHeaders(fields["headers"])

	return &Inbound{
		FromEmail:   fromEmail,
		FromName:    fromName,
		ToEmail:     fields["to"],
		Subject:     fields["subject"],
		Body:        fields["text"],
		HTML:        fields["html"],
		MessageID:   headers["message-id"],
		InReplyTo:   headers["in-reply-to"],
		References:  parseReferences(headers["references"]),
		Attachments: countedAttachments(fields["attachments"], "attachment"),
		Headers:     headers,
	}
}

// ParseMailgun normalizes a Mailgun route post. Mailgun delivers the
// same field names whether the payload was form-encoded or JSON.
func ParseMailgun(fields map[string]string) *Inbound {
	from := fields["from"]
	if from == "" {
		from = fields["sender"]
	}
	fromEmail, fromName := parseAddress(from)

	body := fields["body-plain"]
	if body == "" {
		body = fields["stripped-text"]
	}
	html := fields["body-html"]
	if html == "" {
		html = fields["stripped-html"]
	}

	return &Inbound{
		FromEmail:   fromEmail,
		FromName:    fromName,
		ToEmail:     fields["recipient"],
		Subject:     fields["subject"],
		Body:        body,
		HTML:        html,
		MessageID:   fields["Message-Id"],
		InReplyTo:   fields["In-Reply-To"],
		References:  parseReferences(fields["References"]),
		Attachments: countedAttachments(fields["attachment-count"], "attachment"),
	}
}

// postmarkPayload is the inbound JSON Postmark posts.
type postmarkPayload struct {
	From        string `json:"From"`
	FromName    string `json:"FromName"`
	To          string `json:"To"`
	Subject     string `json:"Subject"`
	TextBody    string `json:"TextBody"`
	HTMLBody    string `json:"HtmlBody"`
	MessageID   string `json:"MessageID"`
	Headers     []struct {
		Name  string `json:"Name"`
		Value string `json:"Value"`
	} `json:"Headers"`
	Attachments []struct {
		Name          string `json:"Name"`
		ContentType   string `json:"ContentType"`
		ContentLength int    `json:"ContentLength"`
	} `json:"Attachments"`
}

// ParsePostmark normalizes a Postmark inbound webhook body.
func ParsePostmark(body []byte) (*Inbound, error) {
	var p postmarkPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode postmark payload: %w", err)
	}

	headers := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}

	attachments := make([]Attachment, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		attachments = append(attachments, Attachment{
			Filename:    stringOr(a.Name, "attachment"),
			ContentType: stringOr(a.ContentType, "application/octet-stream"),
			Size:        a.ContentLength,
		})
	}

	return &Inbound{
		FromEmail:   p.From,
		FromName:    p.FromName,
		ToEmail:     p.To,
		Subject:     p.Subject,
		Body:        p.TextBody,
		HTML:        p.HTMLBody,
		MessageID:   p.MessageID,
		InReplyTo:   headers["in-reply-to"],
		References:  parseReferences(headers["references"]),
		Attachments: attachments,
		Headers:     headers,
	}, nil
}

// genericPayload is the documented shape for custom integrations.
type genericPayload struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Text        string   `json:"text"`
	Body        string   `json:"body"`
	HTML        string   `json:"html"`
	MessageID   string   `json:"message_id"`
	InReplyTo   string   `json:"in_reply_to"`
	References  []string `json:"references"`
	Attachments []struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Size        int    `json:"size"`
	} `json:"attachments"`
}

// ParseGeneric normalizes the generic JSON email shape.
func ParseGeneric(body []byte) (*Inbound, error) {
	var p genericPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode email payload: %w", err)
	}

	fromEmail, fromName := parseAddress(p.From)

	text := p.Text
	if text == "" {
		text = p.Body
	}

	attachments := make([]Attachment, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		attachments = append(attachments, Attachment{
			Filename:    stringOr(a.Filename, "attachment"),
			ContentType: stringOr(a.ContentType, "application/octet-stream"),
			Size:        a.Size,
		})
	}

	return &Inbound{
		FromEmail:   fromEmail,
		FromName:    fromName,
		ToEmail:     p.To,
		Subject:     p.Subject,
		Body:        text,
		HTML:        p.HTML,
		MessageID:   p.MessageID,
		InReplyTo:   p.InReplyTo,
		References:  p.References,
		Attachments: attachments,
	}, nil
}

var addressRe = regexp.MustCompile(`^"?([^"<]*)"?\s*<([^>]+)>$`)

// parseAddress splits "Name <email>" forms; a bare address yields an
// empty name.
func parseAddress(address string) (string, string) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ""
	}
	if m := addressRe.FindStringSubmatch(address); m != nil {
		return strings.TrimSpace(m[2]), strings.TrimSpace(m[1])
	}
	return strings.Trim(address, "<>"), ""
}

// parseRawHeaders parses an RFC 5322 header blob, folding continuation
// lines. Keys are lowercased.
func parseRawHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	if raw == "" {
		return headers
	}

	var key, value string
	flush := func() {
		if key != "" {
			headers[strings.ToLower(key)] = value
		}
	}
	for _, line := range strings.Split(raw, "\n") {
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && key != "" {
			value += " " + strings.TrimSpace(line)
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			flush()
			key = strings.TrimSpace(k)
			value = strings.TrimSpace(v)
		}
	}
	flush()
	return headers
}

var messageIDRe = regexp.MustCompile(`<[^>]+>`)

// parseReferences extracts the <message-id> entries of a References header.
func parseReferences(references string) []string {
	if references == "" {
		return nil
	}
	return messageIDRe.FindAllString(references, -1)
}

// countedAttachments builds placeholder records for form providers that
// only send an attachment count alongside opaque file parts.
func countedAttachments(count, prefix string) []Attachment {
	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return nil
	}
	attachments := make([]Attachment, 0, n)
	for i := 1; i <= n; i++ {
		attachments = append(attachments, Attachment{
			Filename:    fmt.Sprintf("%s%d", prefix, i),
			ContentType: "application/octet-stream",
		})
	}
	return attachments
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
