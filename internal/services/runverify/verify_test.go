package runverify

import (
	"fmt"
	"testing"

	"fastdbchkrep/internal/domain/model"
	"fastdbchkrep/internal/platform/hash"
)

// chain 按写入公式补全事件链。
func chain(events []model.RunEvent) {
	prev := ""
	for i := range events {
		events[i].ChainPrevHash = prev
		detail := string(events[i].DetailJSON)
		if detail == "" {
			detail = "{}"
		}
		events[i].ChainHash = hash.Text(
			prev,
			events[i].RunID,
			events[i].EventType,
			events[i].Status,
			events[i].Message,
			fmt.Sprintf("%d", events[i].OccurredAt),
			detail,
		)
		prev = events[i].ChainHash
	}
}

func sampleEvents() []model.RunEvent {
	return []model.RunEvent{
		{
			EventID:    "evt_1",
			RunID:      "run_1",
			EventType:  "started",
			Status:     "ok",
			Message:    "ingest started",
			DetailJSON: []byte(`{"dbtype":"oracle"}`),
			OccurredAt: 1756166400,
		},
		{
			EventID:    "evt_2",
			RunID:      "run_1",
			EventType:  "validated",
			Status:     "ok",
			DetailJSON: nil, // 兜底：空 detail 视为 "{}"
			OccurredAt: 1756166401,
		},
		{
			EventID:    "evt_3",
			RunID:      "run_1",
			EventType:  "persisted",
			Status:     "ok",
			Message:    "/out/doc.json",
			DetailJSON: []byte(`{"sha256":"abc","size":512}`),
			OccurredAt: 1756166402,
		},
	}
}

func TestVerifyRunEvents_OK(t *testing.T) {
	events := sampleEvents()
	chain(events)

	res := VerifyRunEvents(events)
	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if res.Total != 3 || res.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if res.LastChainHash != events[2].ChainHash {
		t.Fatalf("last chain hash got=%q want=%q", res.LastChainHash, events[2].ChainHash)
	}
}

func TestVerifyRunEvents_Empty(t *testing.T) {
	res := VerifyRunEvents(nil)
	if !res.OK || res.Total != 0 {
		t.Fatalf("empty chain should verify OK: %+v", res)
	}
}

func TestVerifyRunEvents_IndentedDetailStillOK(t *testing.T) {
	events := sampleEvents()
	chain(events)
	// 比对前先 compact，仅格式不同不算篡改。
	events[0].DetailJSON = []byte("{\n  \"dbtype\": \"oracle\"\n}")

	res := VerifyRunEvents(events)
	if !res.OK {
		t.Fatalf("reformatted detail should not fail verification: %+v", res)
	}
}

func TestVerifyRunEvents_TamperedMessage(t *testing.T) {
	events := sampleEvents()
	chain(events)
	events[2].Message = "/out/forged.json"

	res := VerifyRunEvents(events)
	if res.OK {
		t.Fatalf("expected NOT OK")
	}
	if res.ChainHashFailed != 1 || res.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if res.Failures[0].Index != 2 || !res.Failures[0].ChainHashMismatch {
		t.Fatalf("unexpected failure item: %+v", res.Failures[0])
	}
}

func TestVerifyRunEvents_DroppedEvent(t *testing.T) {
	events := sampleEvents()
	chain(events)
	// 抽掉中间一条：后继的 prev_hash 必然断链。
	events = append(events[:1], events[2])

	res := VerifyRunEvents(events)
	if res.OK {
		t.Fatalf("expected NOT OK")
	}
	if res.PrevHashFailed == 0 {
		t.Fatalf("expected prev hash failure, got %+v", res)
	}
}
