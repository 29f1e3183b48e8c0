package state

import (
	"fmt"
	"strings"
)

// Role identifies which kind of component produced a turn.
type Role string

const (
	RoleUser        Role = "user"
	RoleWorker      Role = "worker"
	RoleSupervisor  Role = "supervisor"
	RoleRetry       Role = "retry"
	RoleSynthesizer Role = "synthesizer"
)

// Turn is one immutable entry in the history log.
type Turn struct {
	Role    Role   `json:"role"`
	Source  string `json:"source"`
	Content string `json:"content"`
	Err     bool   `json:"error,omitempty"`
}

// History is a strictly append-only, ordered log of turns. Turns are
// never reordered or removed; the most recent turn is last.
type History struct {
	turns []Turn
}

func NewHistory(initial ...Turn) *History {
	h := &History{}
	for _, t := range initial {
		h.Append(t)
	}
	return h
}

func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
}

func (h *History) Len() int {
	return len(h.turns)
}

// Turns returns a copy so callers cannot mutate the log.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// LastN returns a copy of the most recent n turns.
func (h *History) LastN(n int) []Turn {
	if n <= 0 || n >= len(h.turns) {
		return h.Turns()
	}
	out := make([]Turn, n)
	copy(out, h.turns[len(h.turns)-n:])
	return out
}

// LastUser returns the most recent user turn.
func (h *History) LastUser() (Turn, bool) {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == RoleUser {
			return h.turns[i], true
		}
	}
	return Turn{}, false
}

// First returns the oldest turn, which for a task run is the original request.
func (h *History) First() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[0], true
}

const renderContentLimit = 200

// Render formats turns for a planner prompt, one line per turn with the
// content clipped to keep decision input bounded.
func Render(turns []Turn) string {
	if len(turns) == 0 {
		return "(no conversation yet)"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		content := clip(t.Content, renderContentLimit)
		if t.Err {
			lines = append(lines, fmt.Sprintf("[%s] ERROR: %s", t.Source, content))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", t.Source, content))
	}
	return strings.Join(lines, "\n")
}

func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
