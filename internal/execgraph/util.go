// SPDX-License-Identifier: MPL-2.0

package execgraph

import (
	"sort"

	"posh/internal/mount"
)

func sortLocations(locs []mount.Location) {
	sort.Slice(locs, func(i, j int) bool { return locs[i].String() < locs[j].String() })
}
