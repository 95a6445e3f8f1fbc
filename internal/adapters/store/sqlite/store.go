package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fastdbchkrep/internal/domain/model"
	"fastdbchkrep/internal/platform/hash"
	"fastdbchkrep/internal/platform/id"
)

// Store 封装运行留痕库的读写逻辑。
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveRun 写入一次导入运行的最终记录。
func (s *Store) SaveRun(ctx context.Context, run model.IngestRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs(
			run_id, dbtype, dbmodel, identifier, output_path, output_sha256,
			node_count, consistency_ok, validation_error, status, started_at, finished_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.DBType, run.DBModel, run.Identifier, run.OutputPath,
		nullIfEmpty(run.OutputSHA256), run.NodeCount, boolToInt(run.ConsistencyOK),
		nullIfEmpty(run.ValidationError), run.Status, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

// GetRun 按 run_id 读取运行记录。
func (s *Store) GetRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, dbtype, dbmodel, identifier, output_path,
		       COALESCE(output_sha256, ''), node_count, consistency_ok,
		       COALESCE(validation_error, ''), status, started_at, finished_at
		FROM ingest_runs
		WHERE run_id = ?
	`, runID)

	var run model.IngestRun
	var consistency int
	err := row.Scan(&run.RunID, &run.DBType, &run.DBModel, &run.Identifier,
		&run.OutputPath, &run.OutputSHA256, &run.NodeCount, &consistency,
		&run.ValidationError, &run.Status, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("query ingest run %s: %w", runID, err)
	}
	run.ConsistencyOK = consistency != 0
	return &run, nil
}

// AppendEvent 追加一条运行事件并维护哈希链。
// 链路哈希公式必须与 runverify 的重算逻辑保持一致。
func (s *Store) AppendEvent(ctx context.Context, runID, eventType, status, message string, detail any) error {
	detailJSON := []byte("{}")
	if detail != nil {
		if raw, err := json.Marshal(detail); err == nil {
			detailJSON = raw
		}
	}

	prev := ""
	err := s.db.QueryRowContext(ctx, `
		SELECT chain_hash
		FROM run_events
		WHERE run_id = ?
		ORDER BY rowid DESC
		LIMIT 1
	`, runID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query previous chain hash: %w", err)
	}

	now := time.Now().Unix()
	eventID := id.New("evt")
	chain := hash.Text(prev, runID, eventType, status, message,
		fmt.Sprintf("%d", now), string(detailJSON))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events(
			event_id, run_id, event_type, status, message,
			detail_json, occurred_at, chain_prev_hash, chain_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, runID, eventType, status, message, string(detailJSON),
		now, nullIfEmpty(prev), chain)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}

	return nil
}

// ListEvents 按发生顺序返回一次运行的全部事件。
func (s *Store) ListEvents(ctx context.Context, runID string) ([]model.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, run_id, event_type, status, COALESCE(message, ''),
		       detail_json, occurred_at, COALESCE(chain_prev_hash, ''), chain_hash
		FROM run_events
		WHERE run_id = ?
		ORDER BY rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []model.RunEvent
	for rows.Next() {
		var e model.RunEvent
		var detail string
		if err := rows.Scan(&e.EventID, &e.RunID, &e.EventType, &e.Status,
			&e.Message, &detail, &e.OccurredAt, &e.ChainPrevHash, &e.ChainHash); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.DetailJSON = []byte(detail)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return events, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
