package plan_test

import (
	"testing"

	"index-pump/internal/index"
	"index-pump/internal/plan"
	"index-pump/internal/source"
)

func TestPlanTablePrecedence(t *testing.T) {
	prev := &index.CatalogRecord{SchemaHash: "s1", TableHash: "t1"}

	cases := []struct {
		name       string
		prev       *index.CatalogRecord
		schemaHash string
		tableHash  string
		hasPK      bool
		wantMode   plan.Mode
		wantReason string
	}{
		{"no pk wins over everything", nil, "s2", "t2", false, plan.ModeSkip, plan.ReasonSkippedNoPK},
		{"no pk even with matching catalog", prev, "s1", "t1", false, plan.ModeSkip, plan.ReasonSkippedNoPK},
		{"first run", nil, "s1", "t1", true, plan.ModeFull, plan.ReasonNoPreviousCatalog},
		{"schema change beats table-hash match", prev, "s2", "t1", true, plan.ModeFull, plan.ReasonSchemaHashChanged},
		{"schema change with table change too", prev, "s2", "t2", true, plan.ModeFull, plan.ReasonSchemaHashChanged},
		{"content change only", prev, "s1", "t2", true, plan.ModeFull, plan.ReasonTableHashChanged},
		{"nothing changed", prev, "s1", "t1", true, plan.ModeSkip, plan.ReasonTableHashUnchanged},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mode, reason := plan.PlanTable(tc.prev, tc.schemaHash, tc.tableHash, tc.hasPK)
			if mode != tc.wantMode || reason != tc.wantReason {
				t.Errorf("got %s/%s, want %s/%s", mode, reason, tc.wantMode, tc.wantReason)
			}
		})
	}
}

func TestBuildTablePlans(t *testing.T) {
	tables := []*source.TableInfo{
		{Schema: "public", Table: "users", PKColumns: []string{"id"}},
		{Schema: "public", Table: "orders", PKColumns: []string{"id"}},
		{Schema: "public", Table: "lost"}, // no snapshot recorded below
	}
	snapshots := map[string]*source.TableSnapshot{
		"public.users":  {Schema: "public", Table: "users", SchemaHash: "s1", TableHash: "t1"},
		"public.orders": {Schema: "public", Table: "orders", SchemaHash: "s1", TableHash: "t9"},
	}
	catalog := map[string]*index.CatalogRecord{
		"public.users":  {SchemaHash: "s1", TableHash: "t1"},
		"public.orders": {SchemaHash: "s1", TableHash: "t1"},
	}

	plans := plan.BuildTablePlans(tables, snapshots, catalog)
	if len(plans) != 3 {
		t.Fatalf("expected one plan per table, got %d", len(plans))
	}

	byKey := make(map[string]plan.TablePlan)
	for _, p := range plans {
		byKey[p.Key()] = p
	}

	if p := byKey["public.users"]; p.Mode != plan.ModeSkip || p.Reason != plan.ReasonTableHashUnchanged {
		t.Errorf("users: got %s/%s", p.Mode, p.Reason)
	}
	if p := byKey["public.orders"]; p.Mode != plan.ModeFull || p.Reason != plan.ReasonTableHashChanged {
		t.Errorf("orders: got %s/%s", p.Mode, p.Reason)
	}
	if p := byKey["public.lost"]; p.Mode != plan.ModeSkip || p.Reason != plan.ReasonSnapshotMissing {
		t.Errorf("lost: got %s/%s", p.Mode, p.Reason)
	}
}
