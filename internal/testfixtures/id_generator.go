package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator hands out predictable series and appointment IDs and keeps
// them in issue order so tests can assert which calls consumed one.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	issued []string
}

// NewIDGenerator yields "<prefix>-1", "<prefix>-2", ... The prefix
// defaults to "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%d", g.prefix, len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// NextFunc is Next in the shape services take.
func (g *IDGenerator) NextFunc() func() string {
	return g.Next
}

// Issued returns every ID handed out so far.
func (g *IDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
