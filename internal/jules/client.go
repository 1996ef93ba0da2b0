package jules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"julep/internal/logging"
)

// DefaultBaseURL is the production endpoint of the agent service.
const DefaultBaseURL = "https://jules.googleapis.com/v1alpha"

// Client issues the three remote operations of the session protocol: create
// a session, send a message to an existing session, and list its activities.
// It holds no session state of its own; that belongs to SessionRegistry.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	source         string
	startingBranch string
	logger         *log.Logger
}

// ClientOptions configures a Client. Source identifies the repository the
// remote agent operates against and is only consulted at session creation.
type ClientOptions struct {
	BaseURL        string
	APIKey         string
	Source         string
	StartingBranch string
	Timeout        time.Duration
	Logger         *log.Logger
}

// NewClient validates the required settings and wires the HTTP client.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(opts.Source) == "" {
		return nil, ErrMissingSource
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	branch := opts.StartingBranch
	if branch == "" {
		branch = "main"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        base,
		apiKey:         opts.APIKey,
		source:         opts.Source,
		startingBranch: branch,
		logger:         logger,
	}, nil
}

type createSessionRequest struct {
	Prompt        string        `json:"prompt"`
	SourceContext sourceContext `json:"sourceContext"`
}

type sourceContext struct {
	Source            string            `json:"source"`
	GithubRepoContext githubRepoContext `json:"githubRepoContext"`
}

type githubRepoContext struct {
	StartingBranch string `json:"startingBranch"`
}

type createSessionResponse struct {
	Name string `json:"name"`
}

type sendMessageRequest struct {
	Prompt string `json:"prompt"`
}

type listActivitiesResponse struct {
	Activities []Activity `json:"activities"`
}

// CreateSession starts a new remote session for the given prompt and returns
// the session id extracted from the response name ("sessions/{id}").
func (c *Client) CreateSession(ctx context.Context, prompt string) (string, error) {
	payload := createSessionRequest{
		Prompt: prompt,
		SourceContext: sourceContext{
			Source:            c.source,
			GithubRepoContext: githubRepoContext{StartingBranch: c.startingBranch},
		},
	}

	body, status, err := c.post(ctx, c.baseURL+"/sessions", payload)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if status >= 300 {
		return "", &RequestError{Op: "create session", Status: status, Body: string(body)}
	}

	var resp createSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("create session: parse response: %w", err)
	}
	if resp.Name == "" {
		return "", fmt.Errorf("create session: missing name: %w", ErrMalformedResponse)
	}

	id := resp.Name
	if idx := strings.LastIndex(resp.Name, "/"); idx >= 0 {
		id = resp.Name[idx+1:]
	}
	logging.DevLog("jules: created session %s", id)
	return id, nil
}

// SendMessage delivers a follow-up prompt to an existing session. The agent
// service returns no body worth parsing on success.
func (c *Client) SendMessage(ctx context.Context, sessionID, prompt string) error {
	endpoint := fmt.Sprintf("%s/sessions/%s:sendMessage", c.baseURL, url.PathEscape(sessionID))
	body, status, err := c.post(ctx, endpoint, sendMessageRequest{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if status >= 300 {
		return &RequestError{Op: "send message", Status: status, Body: string(body)}
	}
	logging.DevLog("jules: sent message to session %s", sessionID)
	return nil
}

// ListActivities fetches up to pageSize of the most recent activity records,
// newest first. Callers treat failures here as transient.
func (c *Client) ListActivities(ctx context.Context, sessionID string, pageSize int) ([]Activity, error) {
	endpoint := fmt.Sprintf("%s/sessions/%s/activities?pageSize=%s",
		c.baseURL, url.PathEscape(sessionID), strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list activities: build request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("list activities: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &RequestError{Op: "list activities", Status: resp.StatusCode, Body: string(body)}
	}

	var page listActivitiesResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("list activities: parse response: %w", err)
	}
	for _, activity := range page.Activities {
		if activity.Name == "" {
			return nil, fmt.Errorf("list activities: activity without name: %w", ErrMalformedResponse)
		}
	}
	return page.Activities, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
