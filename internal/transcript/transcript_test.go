package transcript

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := newTestStore(t)

	if err := store.Append("chat-1", "", KindUser, "fix the bug"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append("chat-1", "42", KindAgent, "> Investigating\n"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append("chat-2", "", KindUser, "other conversation"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := store.Recent("chat-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Kind != KindUser || entries[0].Text != "fix the bug" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Session != "42" {
		t.Fatalf("session = %q", entries[1].Session)
	}
}

func TestRecentReturnsOldestFirstWithinLimit(t *testing.T) {
	store := newTestStore(t)
	for _, text := range []string{"one", "two", "three", "four"} {
		if err := store.Append("chat-1", "", KindAgent, text); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.Recent("chat-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Text != "three" || entries[1].Text != "four" {
		t.Fatalf("window = %q, %q", entries[0].Text, entries[1].Text)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append("chat-1", "", KindNotice, "[Timeout waiting for agent]"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	entries, err := reopened.Recent("chat-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Kind != KindNotice {
		t.Fatalf("entries = %+v", entries)
	}
}

type captureSink struct {
	texts []string
	done  int
}

func (c *captureSink) PushText(text string) { c.texts = append(c.texts, text) }
func (c *captureSink) Done()                { c.done++ }

func TestRecordingSinkJournalsAndForwards(t *testing.T) {
	store := newTestStore(t)
	inner := &captureSink{}
	session := "77"
	sink := NewRecordingSink(store, "chat-1", func() string { return session }, inner)

	sink.PushText("hello")
	sink.PushText("")
	sink.Done()

	if len(inner.texts) != 2 || inner.texts[0] != "hello" {
		t.Fatalf("forwarded = %v", inner.texts)
	}
	if inner.done != 1 {
		t.Fatalf("done = %d", inner.done)
	}

	entries, err := store.Recent("chat-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("journaled = %d, empty pushes should not be recorded", len(entries))
	}
	if entries[0].Session != "77" || entries[0].Kind != KindAgent {
		t.Fatalf("entry = %+v", entries[0])
	}
}
