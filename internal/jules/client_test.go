package jules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientOptions{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Source:  "sources/github/acme/widgets",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientOptions{Source: "sources/github/acme/widgets"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestNewClientRequiresSource(t *testing.T) {
	_, err := NewClient(ClientOptions{APIKey: "k"})
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("err = %v, want ErrMissingSource", err)
	}
}

func TestCreateSessionExtractsID(t *testing.T) {
	var gotBody createSessionRequest
	var gotKey string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-Goog-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"name": "sessions/42"})
	}))

	id, err := client.CreateSession(context.Background(), "fix bug X")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q, want 42", id)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotBody.Prompt != "fix bug X" {
		t.Errorf("prompt = %q", gotBody.Prompt)
	}
	if gotBody.SourceContext.Source != "sources/github/acme/widgets" {
		t.Errorf("source = %q", gotBody.SourceContext.Source)
	}
	if gotBody.SourceContext.GithubRepoContext.StartingBranch != "main" {
		t.Errorf("startingBranch = %q", gotBody.SourceContext.GithubRepoContext.StartingBranch)
	}
}

func TestCreateSessionFallsBackToFullName(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "bare-name"})
	}))
	id, err := client.CreateSession(context.Background(), "p")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id != "bare-name" {
		t.Errorf("id = %q, want bare-name", id)
	}
}

func TestCreateSessionFailureCarriesBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "source not allowed"}`))
	}))
	_, err := client.CreateSession(context.Background(), "p")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Status != http.StatusForbidden {
		t.Errorf("status = %d", reqErr.Status)
	}
	if reqErr.Body != `{"error": "source not allowed"}` {
		t.Errorf("body = %q", reqErr.Body)
	}
}

func TestCreateSessionMissingNameIsMalformed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	_, err := client.CreateSession(context.Background(), "p")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestSendMessage(t *testing.T) {
	var path string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	}))
	if err := client.SendMessage(context.Background(), "42", "continue"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if path != "/sessions/42:sendMessage" {
		t.Errorf("path = %q", path)
	}
}

func TestSendMessageFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such session"))
	}))
	err := client.SendMessage(context.Background(), "42", "continue")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Body != "no such session" {
		t.Errorf("body = %q", reqErr.Body)
	}
}

func TestListActivities(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/42/activities" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("pageSize") != "100" {
			t.Errorf("pageSize = %q", r.URL.Query().Get("pageSize"))
		}
		w.Write([]byte(`{"activities": [
			{"name": "a2", "progressUpdated": {"title": "Second", "description": "step"}},
			{"name": "a1", "planGenerated": {"plan": {"steps": [{"title": "Start"}]}}}
		]}`))
	}))

	activities, err := client.ListActivities(context.Background(), "42", 100)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(activities) != 2 {
		t.Fatalf("got %d activities", len(activities))
	}
	if activities[0].Name != "a2" || activities[1].Name != "a1" {
		t.Errorf("unexpected order: %q %q", activities[0].Name, activities[1].Name)
	}
}

func TestListActivitiesRejectsMissingName(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"activities": [{"progressUpdated": {"title": "x", "description": "y"}}]}`))
	}))
	_, err := client.ListActivities(context.Background(), "42", 100)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestListActivitiesFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := client.ListActivities(context.Background(), "42", 100)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
}
