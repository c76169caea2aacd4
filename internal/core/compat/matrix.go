// Package compat evaluates version compatibility between services.
//
// It contains two static tables: the cross-service matrix pairing the
// workflow-engine SDK with the relational database it stores state in, and the
// per-type minimum/maximum version policy. Both are data, not control flow;
// adding a row never requires touching Evaluate.
//
// All functions are pure: identical inputs always produce identical verdicts.
package compat

import (
	"fmt"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/core/version"
)

// =============================================================================
// Matrix
// =============================================================================

// Entry holds the relational-database bounds for one workflow-engine bucket.
// DBMax names a whole major version: "16" admits every 16.x.
type Entry struct {
	EngineBucket  string
	DBMin         string
	DBMax         string
	DBRecommended string
	Support       domain.SupportLevel
}

// Matrix is a lookup table keyed by workflow-engine SDK bucket ("major.minor").
type Matrix struct {
	entries map[string]Entry
}

// NewMatrix builds a matrix from entries. Later entries replace earlier ones
// with the same bucket.
func NewMatrix(entries []Entry) Matrix {
	m := Matrix{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		m.entries[e.EngineBucket] = e
	}
	return m
}

// defaultEntries pairs Temporal Python SDK releases with supported PostgreSQL
// majors.
var defaultEntries = []Entry{
	{EngineBucket: "1.0", DBMin: "10", DBMax: "14", DBRecommended: "13", Support: domain.SupportDeprecated},
	{EngineBucket: "1.1", DBMin: "10", DBMax: "14", DBRecommended: "13", Support: domain.SupportDeprecated},
	{EngineBucket: "1.2", DBMin: "10", DBMax: "14", DBRecommended: "13", Support: domain.SupportDeprecated},
	{EngineBucket: "1.3", DBMin: "12", DBMax: "15", DBRecommended: "14", Support: domain.SupportMaintenance},
	{EngineBucket: "1.4", DBMin: "12", DBMax: "15", DBRecommended: "14", Support: domain.SupportMaintenance},
	{EngineBucket: "1.5", DBMin: "12", DBMax: "16", DBRecommended: "15", Support: domain.SupportActive},
	{EngineBucket: "1.6", DBMin: "12", DBMax: "16", DBRecommended: "15", Support: domain.SupportActive},
	{EngineBucket: "1.7", DBMin: "13", DBMax: "16", DBRecommended: "16", Support: domain.SupportActive},
	{EngineBucket: "1.8", DBMin: "13", DBMax: "16", DBRecommended: "16", Support: domain.SupportActive},
	{EngineBucket: "1.9", DBMin: "13", DBMax: "17", DBRecommended: "16", Support: domain.SupportActive},
	{EngineBucket: "1.10", DBMin: "13", DBMax: "17", DBRecommended: "16", Support: domain.SupportActive},
	{EngineBucket: "1.11", DBMin: "13", DBMax: "17", DBRecommended: "16", Support: domain.SupportActive},
}

var defaultMatrix = NewMatrix(defaultEntries)

// DefaultMatrix returns the built-in compatibility table.
func DefaultMatrix() Matrix {
	return defaultMatrix
}

// Lookup returns the entry for the bucket of engineVersion.
func (m Matrix) Lookup(engineVersion string) (Entry, bool) {
	bucket, err := version.Bucket(engineVersion)
	if err != nil {
		return Entry{}, false
	}
	e, ok := m.entries[bucket]
	return e, ok
}

// Evaluate checks the built-in matrix. See Matrix.Evaluate.
func Evaluate(engineVersion, dbVersion string) domain.CompatibilityVerdict {
	return defaultMatrix.Evaluate(engineVersion, dbVersion)
}

// Evaluate classifies a (workflow-engine SDK, relational database) pair.
//
// Unknown data is permissive: a bucket missing from the table, or a version
// that cannot be parsed, yields support level unknown, Compatible=true and a
// warning asking for manual confirmation. A known-bad pair yields
// Compatible=false and CanProceed=false, with Direction telling whether the
// database is too old or too new for the engine and RecommendedAction naming
// which side to upgrade.
func (m Matrix) Evaluate(engineVersion, dbVersion string) domain.CompatibilityVerdict {
	db := domain.TypeRelationalDB.Info().DisplayName
	engine := domain.TypeWorkflowEngine.Info().DisplayName

	entry, ok := m.Lookup(engineVersion)
	if !ok {
		return domain.CompatibilityVerdict{
			Compatible:   true,
			SupportLevel: domain.SupportUnknown,
			Direction:    domain.DirectionUnknown,
			CanProceed:   true,
			Warning: fmt.Sprintf("no compatibility data for %s SDK %s; confirm %s %s manually",
				engine, orUnknown(engineVersion), db, orUnknown(dbVersion)),
			RecommendedAction: fmt.Sprintf("confirm that %s %s supports %s %s before deploying",
				engine, orUnknown(engineVersion), db, orUnknown(dbVersion)),
		}
	}

	verdict := domain.CompatibilityVerdict{
		SupportLevel: entry.Support,
		Min:          entry.DBMin,
		Max:          entry.DBMax,
		Recommended:  entry.DBRecommended,
	}

	within, err := version.WithinBucket(dbVersion, entry.DBMin, entry.DBMax)
	if err != nil {
		verdict.Compatible = true
		verdict.CanProceed = true
		verdict.Direction = domain.DirectionUnknown
		verdict.Warning = fmt.Sprintf("%s version %q could not be compared against %s SDK %s (supported %s-%s); confirm manually",
			db, dbVersion, engine, engineVersion, entry.DBMin, entry.DBMax)
		verdict.RecommendedAction = fmt.Sprintf("use %s %s", db, entry.DBRecommended)
		return verdict
	}

	if within {
		verdict.Compatible = true
		verdict.CanProceed = true
		verdict.Direction = domain.DirectionOK
		if entry.Support.Degraded() {
			verdict.Warning = fmt.Sprintf("%s SDK %s is in %s support", engine, entry.EngineBucket, entry.Support)
			verdict.RecommendedAction = fmt.Sprintf("plan an upgrade of the %s SDK", engine)
		}
		return verdict
	}

	verdict.Compatible = false
	verdict.CanProceed = false
	if cmp, _ := version.Compare(dbVersion, entry.DBMin); cmp < 0 {
		verdict.Direction = domain.DirectionTooOld
		verdict.Warning = fmt.Sprintf("%s %s is older than the minimum %s required by %s SDK %s",
			db, dbVersion, entry.DBMin, engine, engineVersion)
		verdict.RecommendedAction = fmt.Sprintf("upgrade %s to >= %s (recommended %s)",
			db, entry.DBMin, entry.DBRecommended)
		return verdict
	}
	verdict.Direction = domain.DirectionTooNew
	verdict.Warning = fmt.Sprintf("%s %s is newer than the maximum %s supported by %s SDK %s",
		db, dbVersion, entry.DBMax, engine, engineVersion)
	verdict.RecommendedAction = fmt.Sprintf("upgrade the %s SDK to a release supporting %s %s, or use %s <= %s",
		engine, db, dbVersion, db, entry.DBMax)
	return verdict
}

func orUnknown(s string) string {
	if s == "" {
		return domain.VersionUnknown
	}
	return s
}
