// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package history

import (
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndListBuilds(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Minute)
	builds := []Build{
		{ID: "b-1", StartedAt: base, DurationMS: 1200, Outcome: "success", Trigger: "initial"},
		{ID: "b-2", StartedAt: base.Add(10 * time.Second), DurationMS: 900, Outcome: "failed", Trigger: "modified: /proj/src/A.java"},
		{ID: "b-3", StartedAt: base.Add(20 * time.Second), DurationMS: 800, Outcome: "success", Trigger: "deleted: /proj/src/B.java"},
	}
	for _, b := range builds {
		if err := db.RecordBuild(b); err != nil {
			t.Fatalf("RecordBuild failed: %v", err)
		}
	}

	recent, err := db.RecentBuilds(2)
	if err != nil {
		t.Fatalf("RecentBuilds failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 builds, got %d", len(recent))
	}
	if recent[0].ID != "b-3" || recent[1].ID != "b-2" {
		t.Errorf("builds out of order: %s, %s", recent[0].ID, recent[1].ID)
	}
	if recent[1].Outcome != "failed" {
		t.Errorf("outcome not round-tripped: %+v", recent[1])
	}
}

func TestTaskHashUpsert(t *testing.T) {
	db := openTestDB(t)

	hash, err := db.TaskHash("compile")
	if err != nil {
		t.Fatalf("TaskHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("unseen task should have empty hash, got %q", hash)
	}

	if err := db.UpsertTaskHash("compile", "aaa"); err != nil {
		t.Fatalf("UpsertTaskHash failed: %v", err)
	}
	if err := db.UpsertTaskHash("compile", "bbb"); err != nil {
		t.Fatalf("UpsertTaskHash failed: %v", err)
	}

	hash, err = db.TaskHash("compile")
	if err != nil {
		t.Fatalf("TaskHash failed: %v", err)
	}
	if hash != "bbb" {
		t.Errorf("expected latest hash, got %q", hash)
	}
}
