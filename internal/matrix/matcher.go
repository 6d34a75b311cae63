package matrix

import "github.com/iliyamo/authledger/internal/model"

// Match pairs the submitted row at index Submitted with the persisted row
// at index Persisted, or with nothing when Persisted is -1.
type Match struct {
	Submitted int
	Persisted int
}

// RowMatcher decides which persisted row each submitted grid row stands
// for. Persisted rows left out of every match are deleted.
type RowMatcher interface {
	Match(submitted [][]model.Value, persisted []model.Row) (matches []Match, orphans []int)
}

// PositionalMatcher pairs rows by index in storage order. Rows reordered
// on the client without ids are therefore seen as edits in place.
type PositionalMatcher struct{}

func (PositionalMatcher) Match(submitted [][]model.Value, persisted []model.Row) ([]Match, []int) {
	matches := make([]Match, len(submitted))
	for i := range submitted {
		p := -1
		if i < len(persisted) {
			p = i
		}
		matches[i] = Match{Submitted: i, Persisted: p}
	}
	var orphans []int
	for i := len(submitted); i < len(persisted); i++ {
		orphans = append(orphans, i)
	}
	return matches, orphans
}
