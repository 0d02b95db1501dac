package models

// MatchResult is the ordered set of filenames that had at least one matching
// annotation. The zero value is not usable; call NewMatchResult.
type MatchResult struct {
	files []string
	seen  map[string]struct{}
}

func NewMatchResult() *MatchResult {
	return &MatchResult{
		files: []string{},
		seen:  make(map[string]struct{}),
	}
}

// Add records name and reports whether it was new.
func (m *MatchResult) Add(name string) bool {
	if _, ok := m.seen[name]; ok {
		return false
	}
	m.seen[name] = struct{}{}
	m.files = append(m.files, name)
	return true
}

func (m *MatchResult) Contains(name string) bool {
	_, ok := m.seen[name]
	return ok
}

// Files returns a copy of the recorded filenames in insertion order.
func (m *MatchResult) Files() []string {
	out := make([]string, len(m.files))
	copy(out, m.files)
	return out
}

func (m *MatchResult) Len() int {
	return len(m.files)
}
