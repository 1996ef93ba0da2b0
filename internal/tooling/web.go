package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const searchEndpoint = "https://lite.duckduckgo.com/lite/"

// WebSearchTool queries DuckDuckGo Lite and returns the result links.
type WebSearchTool struct {
	client   *http.Client
	endpoint string
}

func NewWebSearchTool(timeout time.Duration) *WebSearchTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebSearchTool{
		client:   &http.Client{Timeout: timeout},
		endpoint: searchEndpoint,
	}
}

func (*WebSearchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "web_search",
			Description: "Search the web and return a list of result titles and URLs.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query.",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results to return (default 8).",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func (t *WebSearchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, ok := stringArg(args, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return "", errors.New("query is required")
	}
	maxResults := intArg(args, "max_results", 8)
	if maxResults <= 0 {
		maxResults = 8
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Julep/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	type result struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	var results []result
	doc.Find(".result-link").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(results) >= maxResults {
			return false
		}
		href, exists := sel.Attr("href")
		if !exists {
			return true
		}
		title := normalizeWhitespace(sel.Text())
		if title == "" {
			return true
		}
		results = append(results, result{Title: title, URL: cleanRedirect(href)})
		return true
	})

	payload := map[string]any{
		"query":   query,
		"results": results,
	}
	data, err := jsonMarshalNoEscape(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// cleanRedirect unwraps DuckDuckGo's uddg redirect links back to the
// destination URL. Unrecognized links pass through untouched.
func cleanRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
		return target
	}
	if parsed.Scheme == "" {
		return "https:" + href
	}
	return href
}

// WebBrowseTool fetches a page and returns its readable text content.
type WebBrowseTool struct {
	client   *http.Client
	maxBytes int64
}

func NewWebBrowseTool(timeout time.Duration) *WebBrowseTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebBrowseTool{
		client:   &http.Client{Timeout: timeout},
		maxBytes: 2 << 20, // 2MB
	}
}

func (*WebBrowseTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "web_browse",
			Description: "Fetch a web page and return its title and readable text with scripts and styling stripped.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Absolute URL to fetch (http or https).",
					},
					"max_chars": map[string]any{
						"type":        "integer",
						"description": "Maximum characters of text to return (default 8000).",
					},
				},
				"required": []string{"url"},
			},
		},
	}
}

func (t *WebBrowseTool) Call(ctx context.Context, args map[string]any) (string, error) {
	rawURL, ok := stringArg(args, "url")
	if !ok || strings.TrimSpace(rawURL) == "" {
		return "", errors.New("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("url must be http or https: %s", rawURL)
	}
	maxChars := intArg(args, "max_chars", 8000)
	if maxChars <= 0 {
		maxChars = 8000
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Julep/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	limited := &io.LimitedReader{R: resp.Body, N: t.maxBytes}
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := normalizeWhitespace(doc.Find("body").Text())
	truncated := false
	if len(text) > maxChars {
		text = text[:maxChars]
		truncated = true
	}

	payload := map[string]any{
		"url":       resp.Request.URL.String(),
		"status":    resp.StatusCode,
		"title":     title,
		"text":      text,
		"truncated": truncated,
	}
	data, err := jsonMarshalNoEscape(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func jsonMarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
