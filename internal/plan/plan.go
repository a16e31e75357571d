// Package plan decides, per table, whether the current run reindexes it or
// skips it, based on the previous catalog record and the current fingerprints.
package plan

import (
	"index-pump/internal/index"
	"index-pump/internal/source"
)

// Mode is the planned action for a table.
type Mode string

const (
	ModeFull Mode = "full"
	ModeSkip Mode = "skip"
)

// Reason codes explain a plan decision; they end up in logs and reports.
const (
	ReasonSkippedNoPK        = "skipped_no_pk"
	ReasonNoPreviousCatalog  = "no_previous_catalog"
	ReasonSchemaHashChanged  = "schema_hash_changed"
	ReasonTableHashChanged   = "table_hash_changed"
	ReasonTableHashUnchanged = "table_hash_unchanged"
	ReasonSnapshotMissing    = "snapshot_missing"
)

// TablePlan is the planner's verdict for one table in one run. Not persisted.
type TablePlan struct {
	Schema string
	Table  string
	Mode   Mode
	Reason string
}

func (p TablePlan) Key() string {
	return source.TableKey(p.Schema, p.Table)
}

// PlanTable applies the decision rules in strict order, first match wins:
//  1. no primary key             -> skip/skipped_no_pk
//  2. no previous catalog record -> full/no_previous_catalog
//  3. schema hash changed        -> full/schema_hash_changed
//  4. table hash changed         -> full/table_hash_changed
//  5. otherwise                  -> skip/table_hash_unchanged
//
// Tables without a primary key cannot be safely identified across runs, so
// rule 1 wins regardless of hash state.
func PlanTable(prev *index.CatalogRecord, schemaHash, tableHash string, hasPK bool) (Mode, string) {
	switch {
	case !hasPK:
		return ModeSkip, ReasonSkippedNoPK
	case prev == nil:
		return ModeFull, ReasonNoPreviousCatalog
	case prev.SchemaHash != schemaHash:
		return ModeFull, ReasonSchemaHashChanged
	case prev.TableHash != tableHash:
		return ModeFull, ReasonTableHashChanged
	default:
		return ModeSkip, ReasonTableHashUnchanged
	}
}

// BuildTablePlans produces one plan per discovered table. A table with no
// snapshot is skipped with snapshot_missing; the pipeline order makes that
// impossible in normal operation, but a defensive plan beats a nil deref.
func BuildTablePlans(tables []*source.TableInfo, snapshots map[string]*source.TableSnapshot, catalog map[string]*index.CatalogRecord) []TablePlan {
	plans := make([]TablePlan, 0, len(tables))
	for _, t := range tables {
		p := TablePlan{Schema: t.Schema, Table: t.Table}
		snap, ok := snapshots[t.Key()]
		if !ok {
			p.Mode, p.Reason = ModeSkip, ReasonSnapshotMissing
			plans = append(plans, p)
			continue
		}
		p.Mode, p.Reason = PlanTable(catalog[t.Key()], snap.SchemaHash, snap.TableHash, t.HasPrimaryKey())
		plans = append(plans, p)
	}
	return plans
}
