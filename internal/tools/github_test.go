package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubNotConfigured(t *testing.T) {
	gh := NewGitHub("", "")
	assert.False(t, gh.Configured())

	_, err := gh.CreateIssue(context.Background(), "t", "b", nil)
	require.Error(t, err)
}

func TestGitHubCreateIssue(t *testing.T) {
	var got struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/rowanhq/support/issues", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"number":   42,
			"html_url": "https://github.com/rowanhq/support/issues/42",
		})
	}))
	defer srv.Close()

	gh := NewGitHub("tok", "rowanhq/support")
	gh.baseURL = srv.URL

	issue, err := gh.CreateIssue(context.Background(),
		"Checkout crashes", issueBody("500 on submit", "high", ""), priorityLabels("high"))
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "https://github.com/rowanhq/support/issues/42", issue.URL)

	assert.Equal(t, "Checkout crashes", got.Title)
	assert.Contains(t, got.Body, "**Priority:** HIGH")
	assert.Equal(t, []string{"bug", "priority: high"}, got.Labels)
}

func TestGitHubCreateIssueAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Validation Failed"})
	}))
	defer srv.Close()

	gh := NewGitHub("tok", "rowanhq/support")
	gh.baseURL = srv.URL

	_, err := gh.CreateIssue(context.Background(), "t", "b", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Validation Failed")
}

func TestPriorityLabels(t *testing.T) {
	assert.Equal(t, []string{"bug", "priority: critical"}, priorityLabels("critical"))
	assert.Equal(t, []string{"bug"}, priorityLabels("whenever"))
}
