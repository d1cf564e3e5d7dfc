package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rowanhq/ticketflow/internal/log"
)

// Issue is a created tracker issue.
type Issue struct {
	Number int
	URL    string
}

// IssueCreator files bug reports with an external tracker.
type IssueCreator interface {
	// Configured reports whether the integration has credentials.
	Configured() bool

	CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error)
}

// GitHub implements IssueCreator against the GitHub REST API.
type GitHub struct {
	token   string
	repo    string // "owner/name"
	baseURL string
	client  *http.Client
}

// Ensure GitHub implements IssueCreator.
var _ IssueCreator = (*GitHub)(nil)

// NewGitHub creates a GitHub issue creator. Empty token or repo leaves
// it unconfigured; create_bug_report then falls back to local ids.
func NewGitHub(token, repo string) *GitHub {
	return &GitHub{
		token:   token,
		repo:    repo,
		baseURL: "https://api.github.com",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether both token and repo are set.
func (g *GitHub) Configured() bool {
	return g.token != "" && g.repo != ""
}

// CreateIssue files an issue and returns its number and URL.
func (g *GitHub) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("github integration not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"title":  title,
		"body":   body,
		"labels": labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issue payload: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues", g.baseURL, g.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build issue request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("github api error (%d): %s", resp.StatusCode, apiErr.Message)
	}

	var created struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode issue response: %w", err)
	}

	log.Info(log.CatTools, "github issue created",
		"issue_number", created.Number, "url", created.HTMLURL)
	return &Issue{Number: created.Number, URL: created.HTMLURL}, nil
}

// issueBody renders the bug report body with its priority banner.
func issueBody(description, priority, ticketID string) string {
	var b strings.Builder
	b.WriteString("## Bug Report\n\n")
	fmt.Fprintf(&b, "**Priority:** %s\n", strings.ToUpper(priority))
	b.WriteString("**Source:** Support Ticket Agent\n\n---\n\n")
	b.WriteString(description)
	b.WriteString("\n\n---\n*Created automatically from support ticket")
	if ticketID != "" {
		fmt.Fprintf(&b, " `%s`", ticketID)
	}
	b.WriteString("*\n")
	return b.String()
}

// priorityLabels maps a priority to tracker labels.
func priorityLabels(priority string) []string {
	switch priority {
	case "low", "medium", "high", "critical":
		return []string{"bug", "priority: " + priority}
	default:
		return []string{"bug"}
	}
}
