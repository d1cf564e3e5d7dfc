package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Namespace UUIDs for deterministic ticket identity. The HTTP and email
// paths use separate namespaces so the two derivations can never collide.
var (
	TicketNamespace      = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	EmailTicketNamespace = uuid.MustParse("7ba8c920-0ead-22e2-91c5-10d05fe541d9")
)

// TicketID derives the deterministic identity of an HTTP-ingested ticket.
// Submitting the same (customer_id, subject, body) always yields the same
// id, which is the idempotency surface of ingestion.
func TicketID(customerID, subject, body string) uuid.UUID {
	return deriveID(TicketNamespace, fmt.Sprintf("%s:%s:%s", customerID, subject, body))
}

// EmailTicketID derives the deterministic identity of an email-ingested
// ticket from its provider message id, sender, and subject.
func EmailTicketID(messageID, fromEmail, subject string) uuid.UUID {
	return deriveID(EmailTicketNamespace, fmt.Sprintf("%s:%s:%s", messageID, fromEmail, subject))
}

// deriveID computes uuid5(namespace, hex(sha256(content))).
func deriveID(namespace uuid.UUID, content string) uuid.UUID {
	sum := sha256.Sum256([]byte(content))
	return uuid.NewSHA1(namespace, []byte(hex.EncodeToString(sum[:])))
}
