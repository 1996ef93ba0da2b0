package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	t.Setenv("JULEP_CREDENTIALS_PATH", path)
	mgr, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestLoadMissingFileReturnsEmptyCredentials(t *testing.T) {
	mgr := newTestManager(t)

	creds, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds.HasAnyProvider() {
		t.Fatal("expected no providers")
	}
	if mgr.Exists() {
		t.Fatal("Exists should be false before Save")
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	mgr := newTestManager(t)

	creds, err := mgr.Load()
	if err != nil {
		t.Fatal(err)
	}
	creds.SetProvider("jules", "secret-key")
	creds.DefaultProvider = "jules"
	if err := mgr.Save(creds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reloaded.IsConfigured("jules") {
		t.Fatal("jules not configured after reload")
	}
	if got := reloaded.GetAPIKey("jules"); got != "secret-key" {
		t.Fatalf("api key = %q", got)
	}
	if reloaded.DefaultProvider != "jules" {
		t.Fatalf("default provider = %q", reloaded.DefaultProvider)
	}
}

func TestSaveRestrictsFilePermissions(t *testing.T) {
	mgr := newTestManager(t)

	creds, err := mgr.Load()
	if err != nil {
		t.Fatal(err)
	}
	creds.SetProvider("openrouter", "key")
	if err := mgr.Save(creds); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(mgr.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode = %o", perm)
	}
}

func TestRemoveProvider(t *testing.T) {
	mgr := newTestManager(t)
	creds, err := mgr.Load()
	if err != nil {
		t.Fatal(err)
	}
	creds.SetProvider("jules", "a")
	creds.SetProvider("openrouter", "b")
	creds.RemoveProvider("jules")

	if creds.IsConfigured("jules") {
		t.Fatal("jules still configured")
	}
	if !creds.IsConfigured("openrouter") {
		t.Fatal("openrouter removed unexpectedly")
	}
	if err := mgr.Save(creds); err != nil {
		t.Fatal(err)
	}
}
