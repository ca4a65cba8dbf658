package profile

import (
	"encoding/json"
	"time"

	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/progress"
)

// PatchBuilder constructs roadmap_progress patches from evaluation results.
type PatchBuilder struct {
	now func() time.Time
}

// NewPatchBuilder creates a PatchBuilder using wall-clock time.
func NewPatchBuilder() *PatchBuilder {
	return &PatchBuilder{now: time.Now}
}

// RoadmapPatch builds the partial profile update for a roadmap evaluation.
// Roles are compared after normalization, so case and separator drift do
// not count as a switch. On a role switch (or a first evaluation) the patch
// carries the fresh skills status and a new created_at; when the role is
// unchanged and prior status exists, that status is kept and only job_role,
// last_updated, and subskills are refreshed.
func (b *PatchBuilder) RoadmapPatch(prior Profile, jobRole string, status progress.SkillsStatus, filtered []catalog.Subskill) map[string]any {
	now := b.now().UTC().Format(time.RFC3339)

	rp := map[string]any{
		"job_role":     jobRole,
		"last_updated": now,
		"subskills":    jsonShape(filtered),
	}

	priorRole := prior.RoadmapProgress.JobRole
	switched := priorRole == "" || catalog.RoleKey(priorRole) != catalog.RoleKey(jobRole)
	if switched {
		rp["skills_status"] = jsonShape(status)
		rp["created_at"] = now
	} else if len(prior.RoadmapProgress.SkillsStatus) == 0 {
		rp["skills_status"] = jsonShape(status)
	}

	return map[string]any{"roadmap_progress": rp}
}

// Reconcile merges a patch into the stored profile. When the patch carries
// a different job role than the stored one, the old role's skills_status is
// dropped before merging so stale per-subskill state never survives a role
// switch.
func Reconcile(base, patch map[string]any) map[string]any {
	baseRole := roleOf(base)
	patchRole := roleOf(patch)
	if baseRole != "" && patchRole != "" && catalog.RoleKey(baseRole) != catalog.RoleKey(patchRole) {
		base = dropSkillsStatus(base)
	}
	return Merge(base, patch)
}

func roleOf(m map[string]any) string {
	rp, ok := m["roadmap_progress"].(map[string]any)
	if !ok {
		return ""
	}
	role, _ := rp["job_role"].(string)
	return role
}

// dropSkillsStatus returns a copy of the profile without
// roadmap_progress.skills_status.
func dropSkillsStatus(base map[string]any) map[string]any {
	rp, ok := base["roadmap_progress"].(map[string]any)
	if !ok {
		return base
	}
	newRP := make(map[string]any, len(rp))
	for k, v := range rp {
		if k == "skills_status" || k == "created_at" {
			continue
		}
		newRP[k] = v
	}
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	out["roadmap_progress"] = newRP
	return out
}

// jsonShape converts a typed value to its generic JSON representation so
// patches are uniform map/slice/scalar structures regardless of origin.
func jsonShape(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
