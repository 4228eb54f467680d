// SPDX-License-Identifier: MPL-2.0

// Package scheduler computes a PlacementPlan for a parsed pipeline,
// deciding which location — the client host or a proxy — runs each
// stage, per spec.md §4.5.
package scheduler

import "posh/internal/mount"

// FileRef is one InputFile or OutputFile argument of a stage, already
// resolved against the mount table by C3.
type FileRef struct {
	Path       string
	Resolution mount.Resolution
	Splittable bool
}

// StageSpec is the scheduler's view of one pipeline stage: everything C5
// needs from the descriptor match (C2) and mount resolution (C3) without
// depending on the annotation/invocation packages directly.
type StageSpec struct {
	ID                    int
	Matched               bool // false => NoMatch (C2); pinned to Client, non-acceleratable
	NeedsCurrentDir       bool
	FiltersInput          bool
	SplittableAcrossInput bool
	InputFiles            []FileRef
	OutputFiles           []FileRef
}

func (s StageSpec) allFiles() []FileRef {
	out := make([]FileRef, 0, len(s.InputFiles)+len(s.OutputFiles))
	out = append(out, s.InputFiles...)
	out = append(out, s.OutputFiles...)
	return out
}

func (s StageSpec) hasRemoteInputFile() bool {
	for _, f := range s.InputFiles {
		if !f.Resolution.Local {
			return true
		}
	}
	return false
}

// Placement is the chosen location for one stage, plus any splitting
// applied to it.
type Placement struct {
	StageID  int
	Location mount.Location
	// Clones holds the locations of each parallel clone when the stage
	// was split (len(Clones) > 1); empty when not split.
	Clones []mount.Location
	// Aggregator is true when this placement carries a synthetic
	// order-preserving aggregator node downstream of Clones.
	Aggregator bool
}

// Split reports whether this placement replaces the stage with parallel clones.
func (p Placement) Split() bool { return len(p.Clones) > 1 }

// PlacementPlan is the scheduler's output: one Placement per input stage,
// in pipeline order.
type PlacementPlan struct {
	Placements []Placement
}
