package jules

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRenderPlan(t *testing.T) {
	activity := Activity{
		Name: "sessions/1/activities/a1",
		PlanGenerated: &PlanGenerated{Plan: Plan{Steps: []PlanStep{
			{Title: "Reproduce the bug"},
			{Title: "Write a failing test"},
			{Title: "Fix and verify"},
		}}},
	}
	text, done := Render(activity)
	if done {
		t.Fatal("plan activity should not signal completion")
	}
	want := "\n**Plan Generated:**\n- Reproduce the bug\n- Write a failing test\n- Fix and verify\n\n"
	if text != want {
		t.Fatalf("Render = %q, want %q", text, want)
	}
}

func TestRenderProgress(t *testing.T) {
	activity := Activity{
		Name:            "a2",
		ProgressUpdated: &ProgressUpdate{Title: "Investigating", Description: "reading logs"},
	}
	text, done := Render(activity)
	if done {
		t.Fatal("progress activity should not signal completion")
	}
	if text != "> Investigating reading logs\n" {
		t.Fatalf("Render = %q", text)
	}
}

func TestRenderPartialProgressDefaultsEmptyFields(t *testing.T) {
	activity := Activity{
		Name:            "a3",
		ProgressUpdated: &ProgressUpdate{Title: "Cloning"},
	}
	text, _ := Render(activity)
	if text != "> Cloning \n" {
		t.Fatalf("Render = %q", text)
	}
}

func TestRenderArtifacts(t *testing.T) {
	activity := Activity{
		Name: "a4",
		Artifacts: []Artifact{
			{BashOutput: &BashOutput{Command: "go test ./...", Output: "ok"}},
			{ChangeSet: json.RawMessage(`{}`)},
		},
	}
	text, done := Render(activity)
	if done {
		t.Fatal("artifact activity should not signal completion")
	}
	if !strings.Contains(text, "```bash\n$ go test ./...\nok\n```\n") {
		t.Fatalf("missing bash block: %q", text)
	}
	if !strings.Contains(text, "```diff\n[Code Change Applied]\n```\n") {
		t.Fatalf("missing changeset placeholder: %q", text)
	}
}

func TestRenderMultipleClausesInOrder(t *testing.T) {
	activity := Activity{
		Name:            "a5",
		ProgressUpdated: &ProgressUpdate{Title: "Running", Description: "tests"},
		Artifacts: []Artifact{
			{BashOutput: &BashOutput{Command: "make", Output: "done"}},
		},
	}
	text, _ := Render(activity)
	progressIdx := strings.Index(text, "> Running tests")
	bashIdx := strings.Index(text, "```bash")
	if progressIdx < 0 || bashIdx < 0 || progressIdx > bashIdx {
		t.Fatalf("clause order wrong: %q", text)
	}
}

func TestRenderCompletion(t *testing.T) {
	raw := json.RawMessage(`{}`)
	activity := Activity{Name: "a6", SessionCompleted: &raw}
	text, done := Render(activity)
	if !done {
		t.Fatal("expected completion signal")
	}
	if text != "" {
		t.Fatalf("completion should render nothing, got %q", text)
	}
}

func TestRenderUnclassified(t *testing.T) {
	text, done := Render(Activity{Name: "a7", Originator: "user"})
	if text != "" || done {
		t.Fatalf("unclassified activity should render nothing, got %q done=%v", text, done)
	}
}

func TestActivityDecodesProtocolShape(t *testing.T) {
	raw := `{
		"name": "sessions/42/activities/9",
		"originator": "agent",
		"progressUpdated": {"title": "Building", "description": "compiling"},
		"artifacts": [{"bashOutput": {"command": "ls", "output": "main.go"}}]
	}`
	var activity Activity
	if err := json.Unmarshal([]byte(raw), &activity); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if activity.Name != "sessions/42/activities/9" {
		t.Errorf("Name = %q", activity.Name)
	}
	if activity.ProgressUpdated == nil || activity.ProgressUpdated.Title != "Building" {
		t.Errorf("ProgressUpdated = %+v", activity.ProgressUpdated)
	}
	if len(activity.Artifacts) != 1 || activity.Artifacts[0].BashOutput == nil {
		t.Errorf("Artifacts = %+v", activity.Artifacts)
	}
	if activity.Completed() {
		t.Error("should not be completed")
	}
}
