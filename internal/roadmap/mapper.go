package roadmap

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/kb"
	"github.com/kalambet/skillmap/internal/retrieval"
)

const (
	mapperTopK      = 10
	maxCourseHits   = 3
	maxTutorialHits = 5
)

// Retriever is the scoring interface the mapper consumes.
type Retriever interface {
	Score(ctx context.Context, query string, topK int, threshold float64) ([]retrieval.Hit, error)
}

// MappingCache persists computed role mappings. The cache is advisory:
// misses and corrupt entries fall back to recomputation.
type MappingCache interface {
	Get(roleKey string) (catalog.CanonicalRoadmap, bool)
	Put(roleKey string, roadmap catalog.CanonicalRoadmap) error
}

// Mapper populates subskill course and tutorial mappings by querying the
// retrieval scorer with each subskill's display name.
type Mapper struct {
	retriever Retriever
	catalog   *catalog.Catalog
	cache     MappingCache
	logger    *slog.Logger
	threshold float64
}

// NewMapper creates a Mapper. cache may be nil to disable persistence.
func NewMapper(retriever Retriever, cat *catalog.Catalog, cache MappingCache, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		retriever: retriever,
		catalog:   cat,
		cache:     cache,
		logger:    logger,
		threshold: retrieval.DefaultThreshold,
	}
}

// MapRoadmap returns a copy of the roadmap with every subskill's mappings
// populated. A cached mapping for the role is reused when its subskill set
// matches; fresh results are written back to the cache on a best-effort
// basis.
func (m *Mapper) MapRoadmap(ctx context.Context, roadmap catalog.CanonicalRoadmap) (catalog.CanonicalRoadmap, error) {
	roleKey := catalog.RoleKey(roadmap.JobRole)

	if m.cache != nil {
		if cached, ok := m.cache.Get(roleKey); ok && sameSubskills(cached, roadmap) {
			return cached, nil
		}
	}

	out := roadmap.Clone()
	for i := range out.Subskills {
		mapped, err := m.MapSubskill(ctx, out.Subskills[i])
		if err != nil {
			if errors.Is(err, retrieval.ErrUninitialized) {
				return catalog.CanonicalRoadmap{}, err
			}
			// Degrade to empty mappings so one bad subskill does not fail
			// the whole roadmap.
			m.logger.Warn("subskill mapping failed, leaving empty",
				"subskill", out.Subskills[i].ID, "error", err)
			continue
		}
		out.Subskills[i] = mapped
	}

	if m.cache != nil {
		if err := m.cache.Put(roleKey, out); err != nil {
			m.logger.Warn("persisting role mapping failed", "role", roleKey, "error", err)
		}
	}
	return out, nil
}

// MapSubskill queries the scorer with the subskill's name and fills its
// course and tutorial mappings. Subskills that already carry mappings are
// returned untouched. Zero retrieval hits leave the mappings empty.
func (m *Mapper) MapSubskill(ctx context.Context, sub catalog.Subskill) (catalog.Subskill, error) {
	if hasMappings(sub) {
		return sub, nil
	}

	hits, err := m.retriever.Score(ctx, sub.Name, mapperTopK, m.threshold)
	if err != nil {
		return catalog.Subskill{}, err
	}

	out := sub.Clone()
	out.MappedCourses = make(map[string][]string)

	courses := 0
	for _, h := range hits {
		switch h.Type {
		case kb.TypeCourse:
			if courses >= maxCourseHits {
				continue
			}
			tier := m.courseTier(h)
			out.MappedCourses[tier] = append(out.MappedCourses[tier], h.Title)
			courses++
		case kb.TypeTutorial:
			if len(out.MappedTutorials) >= maxTutorialHits {
				continue
			}
			out.MappedTutorials = append(out.MappedTutorials, h.Title)
		}
	}
	if courses == 0 {
		out.MappedCourses = nil
	}
	return out, nil
}

// courseTier resolves a course hit to its proficiency tier via the catalog's
// level column, defaulting to beginner.
func (m *Mapper) courseTier(hit retrieval.Hit) string {
	if m.catalog == nil {
		return catalog.TierBeginner
	}
	course, ok := m.catalog.Resolve(hit.ID)
	if !ok {
		course, ok = m.catalog.Resolve(hit.Title)
	}
	if !ok {
		return catalog.TierBeginner
	}
	switch strings.ToLower(strings.TrimSpace(course.CourseLevel)) {
	case catalog.TierAdvanced, "mahir":
		return catalog.TierAdvanced
	case catalog.TierIntermediate, "menengah":
		return catalog.TierIntermediate
	default:
		return catalog.TierBeginner
	}
}

func hasMappings(sub catalog.Subskill) bool {
	for _, ids := range sub.MappedCourses {
		if len(ids) > 0 {
			return true
		}
	}
	return len(sub.MappedTutorials) > 0
}

// sameSubskills reports whether a cached roadmap covers exactly the
// subskill ids of the canonical one, in order.
func sameSubskills(cached, canonical catalog.CanonicalRoadmap) bool {
	if len(cached.Subskills) != len(canonical.Subskills) {
		return false
	}
	for i := range cached.Subskills {
		if cached.Subskills[i].ID != canonical.Subskills[i].ID {
			return false
		}
	}
	return true
}
