package email

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSendGrid(t *testing.T) {
	form := url.Values{}
	form.Set("from", `"John Doe" <john@example.com>`)
	form.Set("to", "support@rowan.example")
	form.Set("subject", "Where is my order?")
	form.Set("text", "It has been two weeks.")
	form.Set("html", "<p>It has been two weeks.</p>")
	form.Set("attachments", "2")
	form.Set("headers", "Message-ID: <abc@mail.example.com>\n"+
		"In-Reply-To: <prev@mail.example.com>\n"+
		"References: <root@mail.example.com>\n"+
		" <prev@mail.example.com>\n"+
		"Subject: Where is my order?")

	in := ParseSendGrid(Fields(form))

	assert.Equal(t, "john@example.com", in.FromEmail)
	assert.Equal(t, "John Doe", in.FromName)
	assert.Equal(t, "support@rowan.example", in.ToEmail)
	assert.Equal(t, "It has been two weeks.", in.Body)
	assert.Equal(t, "<abc@mail.example.com>", in.MessageID)
	assert.Equal(t, "<prev@mail.example.com>", in.InReplyTo)
	// Folded References header yields both ids.
	assert.Equal(t, []string{"<root@mail.example.com>", "<prev@mail.example.com>"}, in.References)
	require.Len(t, in.Attachments, 2)
	assert.Equal(t, "attachment1", in.Attachments[0].Filename)
}

func TestParseMailgun(t *testing.T) {
	fields := map[string]string{
		"sender":      "jane@example.com",
		"recipient":   "support@rowan.example",
		"subject":     "Refund please",
		"body-plain":  "I want a refund.",
		"Message-Id":  "<mg1@mail.example.com>",
		"In-Reply-To": "<mg0@mail.example.com>",
	}

	in := ParseMailgun(fields)

	assert.Equal(t, "jane@example.com", in.FromEmail)
	assert.Empty(t, in.FromName)
	assert.Equal(t, "I want a refund.", in.Body)
	assert.Equal(t, "<mg1@mail.example.com>", in.MessageID)
	assert.Equal(t, "<mg0@mail.example.com>", in.InReplyTo)
}

func TestParseMailgunStrippedFallback(t *testing.T) {
	in := ParseMailgun(map[string]string{
		"from":             "Jane <jane@example.com>",
		"stripped-text":    "Just the reply.",
		"stripped-html":    "<p>Just the reply.</p>",
		"attachment-count": "1",
	})

	assert.Equal(t, "jane@example.com", in.FromEmail)
	assert.Equal(t, "Jane", in.FromName)
	assert.Equal(t, "Just the reply.", in.Body)
	assert.Equal(t, "<p>Just the reply.</p>", in.HTML)
	assert.Len(t, in.Attachments, 1)
}

func TestParsePostmark(t *testing.T) {
	body := []byte(`{
		"From": "john@example.com",
		"FromName": "John Doe",
		"To": "support@rowan.example",
		"Subject": "Broken keyboard",
		"TextBody": "Keys are sticking.",
		"MessageID": "<pm1@mail.example.com>",
		"Headers": [
			{"Name": "In-Reply-To", "Value": "<pm0@mail.example.com>"},
			{"Name": "References", "Value": "<pm0@mail.example.com>"}
		],
		"Attachments": [
			{"Name": "photo.jpg", "ContentType": "image/jpeg", "ContentLength": 1024}
		]
	}`)

	in, err := ParsePostmark(body)
	require.NoError(t, err)

	assert.Equal(t, "john@example.com", in.FromEmail)
	assert.Equal(t, "John Doe", in.FromName)
	assert.Equal(t, "<pm1@mail.example.com>", in.MessageID)
	assert.Equal(t, "<pm0@mail.example.com>", in.InReplyTo)
	require.Len(t, in.Attachments, 1)
	assert.Equal(t, "photo.jpg", in.Attachments[0].Filename)
	assert.Equal(t, 1024, in.Attachments[0].Size)
}

func TestParseGeneric(t *testing.T) {
	body := []byte(`{
		"from": "Customer <cust@example.com>",
		"to": "support@rowan.example",
		"subject": "Login issue",
		"text": "Cannot log in.",
		"message_id": "<g1@mail.example.com>"
	}`)

	in, err := ParseGeneric(body)
	require.NoError(t, err)
	assert.Equal(t, "cust@example.com", in.FromEmail)
	assert.Equal(t, "Customer", in.FromName)
	assert.Equal(t, "Cannot log in.", in.Body)
	assert.Equal(t, "<g1@mail.example.com>", in.MessageID)
}

func TestParseGenericMalformed(t *testing.T) {
	_, err := ParseGeneric([]byte("not json"))
	require.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in    string
		email string
		name  string
	}{
		{"john@example.com", "john@example.com", ""},
		{"<john@example.com>", "john@example.com", ""},
		{"John Doe <john@example.com>", "john@example.com", "John Doe"},
		{`"John Doe" <john@example.com>`, "john@example.com", "John Doe"},
		{"", "", ""},
	}
	for _, tc := range cases {
		email, name := parseAddress(tc.in)
		assert.Equal(t, tc.email, email, tc.in)
		assert.Equal(t, tc.name, name, tc.in)
	}
}

func TestVerifyMailgunSignature(t *testing.T) {
	key := "whsec_test"
	timestamp := "1724500000"
	token := "token123"

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyMailgunSignature(key, timestamp, token, signature))
	assert.False(t, VerifyMailgunSignature(key, timestamp, token, "bad"))
	assert.False(t, VerifyMailgunSignature("", timestamp, token, signature))
	assert.False(t, VerifyMailgunSignature(key, "", token, signature))
}
