// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"sort"

	"posh/internal/mount"
)

// Scheduler computes PlacementPlans against a fixed mount table, optional
// link-speed hints, and a splitting factor.
type Scheduler struct {
	proxies []mount.Location
	links   *mount.LinkHints
	splitS  int
}

// New builds a Scheduler. splittingFactor below 1 is treated as 1 (no
// splitting), matching spec.md §4.5's "S ≥ 1" precondition without
// forcing callers to validate it themselves.
func New(table *mount.Table, links *mount.LinkHints, splittingFactor int) *Scheduler {
	if splittingFactor < 1 {
		splittingFactor = 1
	}
	seen := map[string]bool{}
	var proxies []mount.Location
	for _, e := range table.Entries() {
		if seen[e.Location.String()] {
			continue
		}
		seen[e.Location.String()] = true
		proxies = append(proxies, e.Location)
	}
	sortLocations(proxies)
	return &Scheduler{proxies: proxies, links: links, splitS: splittingFactor}
}

// Schedule computes a PlacementPlan for stages in pipeline order.
// cwdRes is the mount resolution of the pipeline's working directory,
// used for stages with NeedsCurrentDir.
//
// Stages are walked strictly left to right: a non-first stage's admissible
// set is additionally intersected with a clause equal to its predecessor's
// resolved location (see the pipe-sourced-data note in DESIGN.md). This
// is what makes a filtering stage fed entirely by a Client-placed upstream
// stay on Client rather than hopping to a proxy with nothing to filter.
func (s *Scheduler) Schedule(stages []StageSpec, cwdRes mount.Resolution) *PlacementPlan {
	placements := make([]Placement, len(stages))
	fileAdmissible := make([][]mount.Location, len(stages))

	var prevLocation mount.Location
	for i, st := range stages {
		if !st.Matched {
			placements[i] = Placement{StageID: st.ID, Location: mount.Client()}
			fileAdmissible[i] = []mount.Location{mount.Client()}
			prevLocation = mount.Client()
			continue
		}

		fileAdm := s.fileAdmissibleSet(st, cwdRes)
		fileAdmissible[i] = fileAdm

		admissible := fileAdm
		if i > 0 {
			admissible = intersect(admissible, []mount.Location{prevLocation})
		}

		loc := s.chooseLocation(st, admissible)

		if clones, ok := s.trySplit(st, fileAdm); ok {
			placements[i] = Placement{StageID: st.ID, Location: mount.Client(), Clones: clones, Aggregator: true}
			prevLocation = mount.Client()
			continue
		}

		placements[i] = Placement{StageID: st.ID, Location: loc}
		prevLocation = loc
	}

	s.repair(stages, fileAdmissible, placements)
	pinTerminalLocalOutput(stages, placements)

	return &PlacementPlan{Placements: placements}
}

// fileAdmissibleSet implements spec.md §4.5's "Location candidates per
// stage" from the stage's own NeedsCurrentDir and InputFile/OutputFile
// tokens alone (shell redirections are not tokens of the matched
// descriptor and are not considered here — they are wired at the
// Execution Graph Builder stage instead).
func (s *Scheduler) fileAdmissibleSet(st StageSpec, cwdRes mount.Resolution) []mount.Location {
	universe := append([]mount.Location{mount.Client()}, s.proxies...)
	admissible := universe

	if st.NeedsCurrentDir {
		var clause []mount.Location
		if cwdRes.Local {
			clause = []mount.Location{mount.Client()}
		} else {
			clause = []mount.Location{cwdRes.Location}
		}
		admissible = intersect(admissible, clause)
	}

	for _, f := range st.allFiles() {
		var clause []mount.Location
		if f.Resolution.Local {
			clause = []mount.Location{mount.Client()}
		} else {
			clause = []mount.Location{f.Resolution.Location}
		}
		admissible = intersect(admissible, clause)
	}

	return admissible
}

// chooseLocation implements spec.md §4.5's "Per-stage choice".
func (s *Scheduler) chooseLocation(st StageSpec, admissible []mount.Location) mount.Location {
	proxiesAdm := nonClient(admissible)
	if len(proxiesAdm) == 0 {
		return mount.Client()
	}

	prefersRemote := st.FiltersInput || st.SplittableAcrossInput || st.hasRemoteInputFile()
	if !prefersRemote {
		if containsLocation(admissible, mount.Client()) {
			return mount.Client()
		}
	}
	return bestProxy(proxiesAdm, st)
}

// bestProxy picks the admissible proxy owning the most input bytes,
// approximated by input-file count, tie-broken lexicographically by proxy id.
func bestProxy(proxies []mount.Location, st StageSpec) mount.Location {
	counts := map[string]int{}
	for _, f := range st.InputFiles {
		if f.Resolution.Local {
			continue
		}
		counts[f.Resolution.Location.String()]++
	}

	best := proxies[0]
	bestScore := counts[best.String()]
	for _, p := range proxies[1:] {
		score := counts[p.String()]
		if score > bestScore || (score == bestScore && p.String() < best.String()) {
			best, bestScore = p, score
		}
	}
	return best
}

// repair implements spec.md §4.5's "Cross-stage repair": collapsing a
// remote↔remote hop into a local pipe when doing so respects both
// stages' admissible sets. The pipe-source intersection in Schedule
// places every non-first stage at its predecessor's location or at
// Client, so a plan built by Schedule never has two adjacent stages on
// different proxies and this pass leaves such a plan unchanged.
func (s *Scheduler) repair(stages []StageSpec, fileAdmissible [][]mount.Location, placements []Placement) {
	for i := 0; i+1 < len(stages); i++ {
		a, b := placements[i].Location, placements[i+1].Location
		if placements[i].Split() || placements[i+1].Split() {
			continue
		}
		if a.IsClient() || b.IsClient() || a.Equal(b) {
			continue
		}
		if stages[i].FiltersInput {
			continue // filtering already shrinks the stream; keep the split
		}
		for _, candidate := range []mount.Location{a, b} {
			if containsLocation(fileAdmissible[i], candidate) && containsLocation(fileAdmissible[i+1], candidate) {
				placements[i].Location = candidate
				placements[i+1].Location = candidate
				break
			}
		}
	}
}

// pinTerminalLocalOutput forces the final stage onto Client when its
// OutputFile resolves Local, per spec.md §4.5.
func pinTerminalLocalOutput(stages []StageSpec, placements []Placement) {
	if len(stages) == 0 {
		return
	}
	last := len(stages) - 1
	for _, f := range stages[last].OutputFiles {
		if f.Resolution.Local {
			placements[last].Location = mount.Client()
			return
		}
	}
}

// trySplit implements spec.md §4.5's "Splitting": replacing a stage with
// min(S, k) parallel clones plus a post-stage aggregator, when the
// splitting factor and descriptor/argument flags permit it. It overrides
// whatever the ordinary per-stage choice would have produced, since a
// split stage never occupies a single non-Client location on its own.
func (s *Scheduler) trySplit(st StageSpec, fileAdm []mount.Location) ([]mount.Location, bool) {
	if s.splitS <= 1 {
		return nil, false
	}

	if st.SplittableAcrossInput {
		proxiesAdm := nonClient(fileAdm)
		if k := len(proxiesAdm); k >= 2 {
			sortLocations(proxiesAdm)
			n := s.splitS
			if n > k {
				n = k
			}
			return proxiesAdm[:n], true
		}
		return nil, false
	}

	if owners, ok := splittableArgOwners(st); ok {
		if k := len(owners); k >= 2 {
			locs := make([]mount.Location, 0, k)
			for _, loc := range owners {
				locs = append(locs, loc)
			}
			sortLocations(locs)
			n := s.splitS
			if n > k {
				n = k
			}
			return locs[:n], true
		}
	}
	return nil, false
}

// splittableArgOwners collects the distinct non-Client owners of a
// stage's splittable-flagged input files.
func splittableArgOwners(st StageSpec) (map[string]mount.Location, bool) {
	owners := map[string]mount.Location{}
	found := false
	for _, f := range st.InputFiles {
		if !f.Splittable {
			continue
		}
		found = true
		if !f.Resolution.Local {
			owners[f.Resolution.Location.String()] = f.Resolution.Location
		}
	}
	return owners, found
}

func intersect(a, b []mount.Location) []mount.Location {
	var out []mount.Location
	for _, x := range a {
		if containsLocation(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func containsLocation(set []mount.Location, loc mount.Location) bool {
	for _, x := range set {
		if x.Equal(loc) {
			return true
		}
	}
	return false
}

func nonClient(set []mount.Location) []mount.Location {
	var out []mount.Location
	for _, x := range set {
		if !x.IsClient() {
			out = append(out, x)
		}
	}
	return out
}

func sortLocations(locs []mount.Location) {
	sort.Slice(locs, func(i, j int) bool { return locs[i].String() < locs[j].String() })
}
