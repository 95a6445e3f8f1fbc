package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"fastdbchkrep/internal/domain/model"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	if err := NewMigrator(db).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db), db
}

func TestSaveRunGetRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	run := model.IngestRun{
		RunID:           "run_1",
		DBType:          "oracle",
		DBModel:         "rac",
		Identifier:      "oms-db_hnoms_20250826",
		OutputPath:      "/out/(oracle-rac)-oms-db_hnoms_20250826.json",
		OutputSHA256:    "abc123",
		NodeCount:       2,
		ConsistencyOK:   true,
		ValidationError: "",
		Status:          "success",
		StartedAt:       1756166400,
		FinishedAt:      1756166405,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if *got != run {
		t.Fatalf("round trip got=%+v want=%+v", *got, run)
	}
}

func TestSaveRun_FailedWithValidationError(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	run := model.IngestRun{
		RunID:           "run_2",
		DBType:          "oracle",
		DBModel:         "rac",
		Identifier:      "oms-db_hnoms_20250826",
		NodeCount:       1,
		ConsistencyOK:   false,
		ValidationError: "dbmodel rac requires 2-4 metainfo records, got 1",
		Status:          "success",
		StartedAt:       1756166400,
		FinishedAt:      1756166401,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run_2")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	// 空串列以 NULL 落库，读取侧 COALESCE 还原为空串。
	if got.OutputSHA256 != "" {
		t.Fatalf("output_sha256 got=%q want empty", got.OutputSHA256)
	}
	if got.ValidationError != run.ValidationError {
		t.Fatalf("validation_error got=%q want=%q", got.ValidationError, run.ValidationError)
	}
	if got.ConsistencyOK {
		t.Fatalf("consistency_ok got=true want=false")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	if _, err := store.GetRun(ctx, "missing"); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestAppendEvent_Chain(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	if err := store.AppendEvent(ctx, "run_1", "started", "ok", "ingest started",
		map[string]any{"dbtype": "oracle"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.AppendEvent(ctx, "run_1", "validated", "ok", "", nil); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.AppendEvent(ctx, "run_1", "persisted", "ok", "/out/doc.json", nil); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	// 另一条 run 的事件不应串链。
	if err := store.AppendEvent(ctx, "run_other", "started", "ok", "", nil); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := store.ListEvents(ctx, "run_1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events got=%d want=3", len(events))
	}

	if events[0].EventType != "started" || events[2].EventType != "persisted" {
		t.Fatalf("event order got=[%s %s %s]", events[0].EventType, events[1].EventType, events[2].EventType)
	}
	if events[0].ChainPrevHash != "" {
		t.Fatalf("first event prev hash got=%q want empty", events[0].ChainPrevHash)
	}
	for i := 1; i < len(events); i++ {
		if events[i].ChainPrevHash != events[i-1].ChainHash {
			t.Fatalf("chain broken at %d: prev=%q want=%q",
				i, events[i].ChainPrevHash, events[i-1].ChainHash)
		}
	}

	// 空 detail 统一落 "{}"。
	if string(events[1].DetailJSON) != "{}" {
		t.Fatalf("detail got=%q want={}", events[1].DetailJSON)
	}
}
