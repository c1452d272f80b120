package orchestration

import (
	"slices"

	"github.com/koscakluka/ema-companion/core/llms"
)

// Epoch identifies one response stream. Exactly one epoch is current at a
// time and epochs are never reused.
type Epoch uint64

// MessageSnapshot is the accumulated state of one assistant response.
type MessageSnapshot struct {
	Epoch       Epoch
	Text        string
	Sources     []llms.Citation
	IsStreaming bool
}

// Merge appends the fragment text and any citations whose URI has not been
// seen yet. The input snapshot is not modified.
func Merge(snapshot MessageSnapshot, fragment llms.Fragment) MessageSnapshot {
	acc := newResponseAccumulator(snapshot)
	return acc.Merge(fragment)
}

// responseAccumulator keeps the URI set alongside the snapshot so repeated
// merges do not rescan the sources.
type responseAccumulator struct {
	snapshot MessageSnapshot
	seen     map[string]struct{}
}

func newResponseAccumulator(snapshot MessageSnapshot) *responseAccumulator {
	acc := &responseAccumulator{
		snapshot: snapshot,
		seen:     make(map[string]struct{}, len(snapshot.Sources)),
	}
	acc.snapshot.Sources = slices.Clone(snapshot.Sources)
	for _, source := range snapshot.Sources {
		acc.seen[source.URI] = struct{}{}
	}
	return acc
}

func (a *responseAccumulator) Merge(fragment llms.Fragment) MessageSnapshot {
	a.snapshot.Text += fragment.TextDelta
	for _, citation := range fragment.Citations {
		if citation.URI == "" {
			continue
		}
		if _, ok := a.seen[citation.URI]; ok {
			continue
		}
		a.seen[citation.URI] = struct{}{}
		a.snapshot.Sources = append(a.snapshot.Sources, citation)
	}
	return a.Snapshot()
}

// Freeze marks the response complete and returns the final snapshot.
func (a *responseAccumulator) Freeze() MessageSnapshot {
	a.snapshot.IsStreaming = false
	return a.Snapshot()
}

// Snapshot returns a copy that later merges cannot change.
func (a *responseAccumulator) Snapshot() MessageSnapshot {
	snapshot := a.snapshot
	snapshot.Sources = slices.Clone(a.snapshot.Sources)
	return snapshot
}
