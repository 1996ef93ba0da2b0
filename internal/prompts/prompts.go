package prompts

import (
	_ "embed"
	"strings"
	"sync"
)

//go:embed system_julep.txt
var baseSystemPrompt string

var (
	metadataMu sync.RWMutex
	metadata   string
)

// Base returns the built-in Julep system prompt.
func Base() string {
	return strings.TrimSpace(baseSystemPrompt)
}

// Combine joins the built-in prompt with an optional user-provided prompt.
func Combine(user string) string {
	trimmed := strings.TrimSpace(user)
	sections := []string{Base()}

	if meta := getMetadata(); meta != "" {
		sections = append(sections, "## Environment Context\n"+meta)
	}
	if trimmed != "" {
		sections = append(sections, trimmed)
	}

	return strings.Join(sections, "\n\n")
}

// SetMetadata defines the environment metadata appended to the system prompt.
func SetMetadata(info string) {
	metadataMu.Lock()
	defer metadataMu.Unlock()
	metadata = strings.TrimSpace(info)
}

func getMetadata() string {
	metadataMu.RLock()
	defer metadataMu.RUnlock()
	return metadata
}
