package memory

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// identifierPattern preserves camelCase, snake_case and kebab-case tokens.
var identifierPattern = regexp.MustCompile(`[a-zA-Z0-9_.-]+`)

// stopWords are common English words excluded from entity extraction.
//
//nolint:gochecknoglobals // Static lookup table
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "should": true, "could": true, "may": true, "might": true,
	"must": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true,
	"it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"check": true, "please": true, "run": true, "show": true,
}

// Entities is a monotonic set of tokens (service names, files, hosts)
// extracted from user queries and tool output. It grows within a session
// and is never trimmed by conversation clears.
type Entities struct {
	mu  sync.Mutex
	set map[string]bool
}

// NewEntities creates an empty entity set.
func NewEntities() *Entities {
	return &Entities{set: make(map[string]bool)}
}

// ExtractFrom scans text and adds any entity-like tokens to the set.
// Returns the number of tokens newly added.
func (e *Entities) ExtractFrom(text string) int {
	tokens := identifierPattern.FindAllString(text, -1)

	e.mu.Lock()
	defer e.mu.Unlock()

	added := 0
	for _, token := range tokens {
		lower := strings.ToLower(strings.Trim(token, "."))
		if len(lower) < 3 || stopWords[lower] {
			continue
		}
		if !e.set[lower] {
			e.set[lower] = true
			added++
		}
	}
	return added
}

// All returns the tracked entities, sorted for stable prompts.
func (e *Entities) All() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.set))
	for entity := range e.set {
		out = append(out, entity)
	}
	sort.Strings(out)
	return out
}

// Has reports whether an entity is tracked (case-insensitive).
func (e *Entities) Has(entity string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set[strings.ToLower(entity)]
}

// Len returns the number of tracked entities.
func (e *Entities) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.set)
}
