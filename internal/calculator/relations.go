package calculator

import (
	"fmt"
	"log/slog"

	"github.com/mmynk/cantina/internal/models"
)

// RelationIndex maps guardians to the dependents they are related to at one
// level, and each such dependent back to the relation that placed it.
type RelationIndex struct {
	level       int
	byGuardian  map[string][]string
	byDependent map[string]models.Relation
	guardians   []string
	dependents  []string
	warnings    []DataIntegrityWarning
}

// IndexOption configures BuildRelationIndex.
type IndexOption func(*indexConfig)

type indexConfig struct {
	known map[string]bool
}

// WithKnownGuardians restricts the index to relations whose guardian is in
// guardians. Relations to any other guardian are skipped with a
// MissingGuardian warning and never claim their dependent, so a dependent
// linked to an unknown and a known guardian is billed to the known one.
func WithKnownGuardians(guardians []models.Guardian) IndexOption {
	return func(c *indexConfig) {
		c.known = make(map[string]bool, len(guardians))
		for _, g := range guardians {
			c.known[g.ID] = true
		}
	}
}

// BuildRelationIndex indexes the relations of the given level. relations
// must be the complete collection; filtering by level happens here.
//
// Each (guardian, dependent) pair is kept once. A dependent linked to several
// guardians stays with the first one in input order, so a dependent is never
// billed twice. Both conditions produce warnings.
func BuildRelationIndex(relations []models.Relation, level int, logger *slog.Logger, opts ...IndexOption) *RelationIndex {
	if logger == nil {
		logger = slog.Default()
	}
	var cfg indexConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ix := &RelationIndex{
		level:       level,
		byGuardian:  make(map[string][]string),
		byDependent: make(map[string]models.Relation),
	}

	for _, r := range relations {
		if r.Level != level {
			continue
		}

		if cfg.known != nil && !cfg.known[r.GuardianID] {
			w := DataIntegrityWarning{
				Kind:     MissingGuardian,
				EntityID: r.ID,
				Detail: fmt.Sprintf("relation of dependent %s points to unknown guardian %s",
					r.DependentID, r.GuardianID),
			}
			logWarning(logger, w)
			ix.warnings = append(ix.warnings, w)
			continue
		}

		if existing, ok := ix.byDependent[r.DependentID]; ok {
			w := DataIntegrityWarning{Kind: DuplicateRelation, EntityID: r.ID}
			if existing.GuardianID == r.GuardianID {
				w.Detail = fmt.Sprintf("guardian %s and dependent %s already related by %s",
					r.GuardianID, r.DependentID, existing.ID)
			} else {
				w.Kind = ConflictingGuardian
				w.Detail = fmt.Sprintf("dependent %s already billed to guardian %s by %s; guardian %s ignored",
					r.DependentID, existing.GuardianID, existing.ID, r.GuardianID)
			}
			logWarning(logger, w)
			ix.warnings = append(ix.warnings, w)
			continue
		}

		if _, seen := ix.byGuardian[r.GuardianID]; !seen {
			ix.guardians = append(ix.guardians, r.GuardianID)
		}
		ix.byGuardian[r.GuardianID] = append(ix.byGuardian[r.GuardianID], r.DependentID)
		ix.byDependent[r.DependentID] = r
		ix.dependents = append(ix.dependents, r.DependentID)
	}

	return ix
}

// Level returns the level the index was built for.
func (ix *RelationIndex) Level() int {
	return ix.level
}

// DependentsOf returns the dependents of guardianID in relation order, or
// nil when the guardian has no relation at the level.
func (ix *RelationIndex) DependentsOf(guardianID string) []string {
	return ix.byGuardian[guardianID]
}

// HasGuardian reports whether guardianID has any relation at the level.
func (ix *RelationIndex) HasGuardian(guardianID string) bool {
	_, ok := ix.byGuardian[guardianID]
	return ok
}

// RelationFor returns the relation that placed dependentID in the index.
func (ix *RelationIndex) RelationFor(dependentID string) (models.Relation, bool) {
	r, ok := ix.byDependent[dependentID]
	return r, ok
}

// Guardians returns every indexed guardian id in first-seen order.
func (ix *RelationIndex) Guardians() []string {
	return ix.guardians
}

// DependentIDs returns every indexed dependent id in first-seen order.
func (ix *RelationIndex) DependentIDs() []string {
	return ix.dependents
}

// Warnings returns the integrity warnings raised while indexing.
func (ix *RelationIndex) Warnings() []DataIntegrityWarning {
	return ix.warnings
}
