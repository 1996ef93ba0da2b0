package jules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Activity is one timestamped event emitted by a remote session. Exactly
// which payload fields are present determines how it renders; unknown shapes
// render nothing but still count as processed.
type Activity struct {
	Name             string           `json:"name"`
	Originator       string           `json:"originator,omitempty"`
	PlanGenerated    *PlanGenerated   `json:"planGenerated,omitempty"`
	ProgressUpdated  *ProgressUpdate  `json:"progressUpdated,omitempty"`
	Artifacts        []Artifact       `json:"artifacts,omitempty"`
	SessionCompleted *json.RawMessage `json:"sessionCompleted,omitempty"`
}

// PlanGenerated carries the ordered steps the agent intends to take.
type PlanGenerated struct {
	Plan Plan `json:"plan"`
}

type Plan struct {
	Steps []PlanStep `json:"steps"`
}

type PlanStep struct {
	Title string `json:"title"`
}

// ProgressUpdate is a short status line from the agent.
type ProgressUpdate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Artifact wraps the concrete outputs attached to an activity. ChangeSet
// content is deliberately kept opaque; only its presence is rendered.
type Artifact struct {
	BashOutput *BashOutput     `json:"bashOutput,omitempty"`
	ChangeSet  json.RawMessage `json:"changeSet,omitempty"`
}

type BashOutput struct {
	Command string `json:"command"`
	Output  string `json:"output"`
}

// Completed reports whether this activity signals the session is finished.
func (a Activity) Completed() bool {
	return a.SessionCompleted != nil
}

// Render classifies an activity and produces its human-readable text. The
// clause order is fixed: plan, progress, bash outputs, change sets. A single
// activity may match several clauses and all of them render. The boolean
// result signals session completion; unmatched activities render nothing.
func Render(a Activity) (string, bool) {
	var b strings.Builder

	if plan := a.PlanGenerated; plan != nil {
		b.WriteString("\n**Plan Generated:**\n")
		for _, step := range plan.Plan.Steps {
			fmt.Fprintf(&b, "- %s\n", step.Title)
		}
		b.WriteString("\n")
	}

	if progress := a.ProgressUpdated; progress != nil {
		fmt.Fprintf(&b, "> %s %s\n", progress.Title, progress.Description)
	}

	for _, artifact := range a.Artifacts {
		if bash := artifact.BashOutput; bash != nil {
			fmt.Fprintf(&b, "```bash\n$ %s\n%s\n```\n", bash.Command, bash.Output)
		}
	}
	for _, artifact := range a.Artifacts {
		if len(artifact.ChangeSet) > 0 {
			b.WriteString("```diff\n[Code Change Applied]\n```\n")
		}
	}

	return b.String(), a.Completed()
}
