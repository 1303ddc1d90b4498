package conversation

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultLimit  = 15
	DefaultWindow = 6
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Title returns the role name with its first letter upper-cased, e.g. "User".
func (r Role) Title() string {
	first, size := utf8.DecodeRuneInString(string(r))
	if first == utf8.RuneError {
		return string(r)
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(string(r)[size:])
}

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Memory is a bounded, insertion-ordered log of turns. Once the log grows past
// its limit the oldest turns are evicted first.
type Memory struct {
	mu    sync.Mutex
	limit int
	turns []Turn
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Memory{limit: limit, turns: make([]Turn, 0, limit+1)}
}

func (m *Memory) Append(role Role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, Turn{Role: role, Content: content})
	if over := len(m.turns) - m.limit; over > 0 {
		kept := copy(m.turns, m.turns[over:])
		clear(m.turns[kept:])
		m.turns = m.turns[:kept]
	}
}

// Summarize renders the most recent window turns as "<Role>: <content>" lines,
// newest last. An empty memory yields an empty string.
func (m *Memory) Summarize(window int) string {
	if window <= 0 {
		window = DefaultWindow
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start := len(m.turns) - window
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, len(m.turns)-start)
	for _, turn := range m.turns[start:] {
		lines = append(lines, turn.Role.Title()+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

func (m *Memory) Limit() int {
	return m.limit
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.turns)
	m.turns = m.turns[:0]
}
