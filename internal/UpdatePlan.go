package internal

import "sort"

// UpdatePlan is the ordered, filtered set of patches required to bring the
// local installation up to date, together with the version vector it was
// computed against. Plans are built fresh on every check and never
// persisted.
type UpdatePlan struct {
	Patches       []*PatchDescriptor
	LocalVersions VersionVector
}

// TotalDownloadSize returns the declared byte size of the whole plan.
func (p *UpdatePlan) TotalDownloadSize() int64 {
	if p == nil {
		return 0
	}
	var total int64
	for _, d := range p.Patches {
		total += d.Size
	}
	return total
}

// IsEmpty reports whether the plan requires no work.
func (p *UpdatePlan) IsEmpty() bool {
	return p == nil || len(p.Patches) == 0
}

// BuildUpdatePlan filters the manifest descriptors against the local
// version vector.
//
// A repository absent from the vector is a fresh install if it is the base
// game (everything is required, full-install packages included) and a
// never-purchased expansion otherwise (nothing is required). For a present
// repository, full-install packages are excluded and only descriptors
// strictly newer than the local version remain. Ordering is ascending by
// version within a repository and ascending by repository id across
// repositories, so equal inputs always yield an identical plan.
func BuildUpdatePlan(descriptors []*PatchDescriptor, local VersionVector) *UpdatePlan {
	grouped := make(map[Repository][]*PatchDescriptor)
	for _, d := range descriptors {
		grouped[d.Repository] = append(grouped[d.Repository], d)
	}

	plan := &UpdatePlan{LocalVersions: local}

	for repo := BaseGame; repo <= Repository(MaxExpansion); repo++ {
		group := grouped[repo]
		if len(group) == 0 {
			continue
		}

		localVersion, present := local[repo]
		if !present && !repo.IsBase() {
			continue
		}

		var required []*PatchDescriptor
		for _, d := range group {
			if !present {
				required = append(required, d)
				continue
			}
			if d.Version.IsFullInstall() {
				continue
			}
			if d.Version.After(localVersion) {
				required = append(required, d)
			}
		}

		sort.SliceStable(required, func(i, j int) bool {
			return required[i].Version.Compare(required[j].Version) < 0
		})
		plan.Patches = append(plan.Patches, required...)
	}

	if plan.IsEmpty() {
		return nil
	}
	return plan
}
