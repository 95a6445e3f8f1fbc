// Package ingest 是元数据导入的编排入口：
// 校验参数、按单机/集群分派解析、确定标识符、
// 校验并持久化文档，同时写运行留痕。
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"fastdbchkrep/internal/adapters/manifest"
	"fastdbchkrep/internal/adapters/profiles"
	"fastdbchkrep/internal/adapters/schema"
	sqlitestore "fastdbchkrep/internal/adapters/store/sqlite"
	"fastdbchkrep/internal/app"
	"fastdbchkrep/internal/domain/model"
	"fastdbchkrep/internal/platform/hash"
	"fastdbchkrep/internal/platform/id"
	"fastdbchkrep/internal/services/topology"

	_ "modernc.org/sqlite"
)

// identifierSanitizer 把任意输入压进 identifier 的合法字符集。
var identifierSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Options 定义一次导入运行的输入参数。
type Options struct {
	DBType     string   // oracle / oracle_db_file / mysql / postgresql / sqlserver
	DBModel    string   // one / rac
	ImportDirs []string // 单机恰好 1 个，RAC 2-4 个
	OutputDir  string   // 元数据 JSON 输出目录，不存在则创建；空则用默认配置
	Identifier string   // 可选的自定义标识符，空则自动推导

	ProfilePath string // 可选的 dbtype profile 覆盖文件
	AuditDBPath string // 可选的运行留痕库路径，空则不留痕
}

// Result 是一次导入运行的摘要输出。
// 校验失败等软问题只体现在 ValidationError / Warnings，不影响成功与否。
type Result struct {
	RunID           string   `json:"run_id"`
	Identifier      string   `json:"identifier"`
	OutputPath      string   `json:"output_path"`
	NodeCount       int      `json:"node_count"`
	ConsistencyOK   bool     `json:"consistency_ok"`
	ValidationError string   `json:"validation_error,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	StartedAt       int64    `json:"started_at"`
	FinishedAt      int64    `json:"finished_at"`
}

// Ingest 是暴露给外围 CLI 的最小接口：成功与否加产出路径。
// 细粒度诊断只进日志和 Result，不改变成败判定。
func Ingest(ctx context.Context, opts Options) (bool, string) {
	res, err := Run(ctx, opts)
	if err != nil {
		slog.Error("ingest run failed", "error", err)
		return false, ""
	}
	return true, res.OutputPath
}

// Run 执行导入主流程。硬错误（参数非法、单机解析失败、
// 集群全部节点失败）返回 error；文档校验失败按既定策略
// 照常持久化，只写入 Result.ValidationError。
func Run(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	res := &Result{
		RunID:         id.New("run"),
		ConsistencyOK: true,
		StartedAt:     started.Unix(),
	}

	if opts.OutputDir == "" {
		opts.OutputDir = app.DefaultConfig().JSONOutDir
	}

	profs, err := profiles.LoadFile(opts.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("load dbtype profiles: %w", err)
	}

	prof, err := checkPreconditions(opts, profs)
	if err != nil {
		return nil, err
	}

	rec, err := newRecorder(ctx, opts.AuditDBPath)
	if err != nil {
		// 留痕库不可用不阻断导入，降级为日志告警。
		slog.Warn("run audit store unavailable", "path", opts.AuditDBPath, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("run audit store unavailable: %v", err))
		rec = nil
	}
	defer rec.close()

	rec.event(ctx, res.RunID, "started", "ok", "ingest started", map[string]any{
		"dbtype":         opts.DBType,
		"dbmodel":        opts.DBModel,
		"import_dirs":    opts.ImportDirs,
		"profile_source": profs.Source,
		"profile_sha256": profs.SHA256,
	})

	doc := model.NewMetaDocument(model.DBType(opts.DBType), model.DBModel(opts.DBModel), "temp")

	switch model.DBModel(opts.DBModel) {
	case model.DBModelSingle:
		node, err := manifest.Resolve(opts.ImportDirs[0], prof, 0)
		if err != nil {
			rec.event(ctx, res.RunID, "node_resolved", "failed", err.Error(), nil)
			rec.finish(ctx, failedRun(res, opts, started))
			return nil, fmt.Errorf("resolve %s: %w", opts.ImportDirs[0], err)
		}
		rec.event(ctx, res.RunID, "node_resolved", "ok", node.Hostname, map[string]any{
			"sid":               node.SID,
			"validation_status": node.ValidationStatus,
		})
		doc.Metainfo = []model.NodeRecord{*node}

	case model.DBModelRAC:
		cluster, err := topology.BuildCluster(opts.ImportDirs, prof)
		if err != nil {
			rec.event(ctx, res.RunID, "cluster_built", "failed", err.Error(), nil)
			rec.finish(ctx, failedRun(res, opts, started))
			return nil, fmt.Errorf("build cluster: %w", err)
		}

		ok, issues := cluster.Consistency()
		res.ConsistencyOK = ok
		if !ok {
			for _, issue := range issues {
				slog.Warn("cluster consistency issue", "issue", issue)
				res.Warnings = append(res.Warnings, issue)
			}
		}
		rec.event(ctx, res.RunID, "consistency", consistencyStatus(ok), "", map[string]any{
			"ok":     ok,
			"issues": issues,
		})

		doc.Metainfo = cluster.Merge()
		for _, node := range doc.Metainfo {
			rec.event(ctx, res.RunID, "node_resolved", "ok", node.Hostname, map[string]any{
				"sid":               node.SID,
				"node_number":       node.NodeInfo.NodeNumber,
				"validation_status": node.ValidationStatus,
			})
		}

		if cluster.DBName != "" {
			doc.ClusterInfo = &model.ClusterInfo{
				ClusterName:      cluster.ClusterName,
				DBName:           cluster.DBName,
				NodeCount:        len(cluster.Nodes),
				ConsistencyCheck: ok,
			}
		}

		if opts.Identifier == "" {
			opts.Identifier = cluster.DeriveIdentifier()
		}
	}

	if len(doc.Metainfo) == 0 {
		rec.finish(ctx, failedRun(res, opts, started))
		return nil, fmt.Errorf("no usable node data collected")
	}

	if opts.Identifier == "" {
		opts.Identifier = deriveSingleIdentifier(opts.ImportDirs[0])
	}
	doc.Identifier = sanitizeIdentifier(opts.Identifier)
	res.Identifier = doc.Identifier
	res.NodeCount = len(doc.Metainfo)

	// 时间戳在写盘前最后确定。
	doc.Timestamp = time.Now().Format(time.RFC3339)

	// 校验失败不拦截写盘：宁可产出带瑕疵的工件，也不让一次采集白跑。
	if err := validateDocument(doc); err != nil {
		slog.Error("document failed schema validation, persisting anyway", "error", err)
		res.ValidationError = err.Error()
		rec.event(ctx, res.RunID, "validated", "failed", err.Error(), nil)
	} else {
		rec.event(ctx, res.RunID, "validated", "ok", "", nil)
	}

	outputPath, err := persistDocument(doc, opts.OutputDir)
	if err != nil {
		rec.event(ctx, res.RunID, "persisted", "failed", err.Error(), nil)
		rec.finish(ctx, failedRun(res, opts, started))
		return nil, err
	}
	res.OutputPath = outputPath
	res.FinishedAt = time.Now().Unix()

	sum, size, hashErr := hash.File(outputPath)
	if hashErr != nil {
		slog.Warn("hash output document", "error", hashErr)
	}
	rec.event(ctx, res.RunID, "persisted", "ok", outputPath, map[string]any{
		"sha256": sum,
		"size":   size,
	})
	rec.finish(ctx, model.IngestRun{
		RunID:           res.RunID,
		DBType:          opts.DBType,
		DBModel:         opts.DBModel,
		Identifier:      res.Identifier,
		OutputPath:      outputPath,
		OutputSHA256:    sum,
		NodeCount:       res.NodeCount,
		ConsistencyOK:   res.ConsistencyOK,
		ValidationError: res.ValidationError,
		Status:          "success",
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
	})

	slog.Info("metadata document generated",
		"path", outputPath, "nodes", res.NodeCount, "identifier", res.Identifier)
	return res, nil
}

// checkPreconditions 做所有 I/O 之前的参数校验，违规即硬错误。
func checkPreconditions(opts Options, profs *profiles.Set) (profiles.Profile, error) {
	prof, ok := profs.Get(model.DBType(opts.DBType))
	if !ok {
		return profiles.Profile{}, fmt.Errorf("unsupported dbtype %q (supported: %v)",
			opts.DBType, profs.Supported())
	}

	switch model.DBModel(opts.DBModel) {
	case model.DBModelSingle:
		if len(opts.ImportDirs) != 1 {
			return profiles.Profile{}, fmt.Errorf("dbmodel one requires exactly 1 import directory, got %d",
				len(opts.ImportDirs))
		}
	case model.DBModelRAC:
		if len(opts.ImportDirs) < 2 || len(opts.ImportDirs) > 4 {
			return profiles.Profile{}, fmt.Errorf("dbmodel rac requires 2-4 import directories, got %d",
				len(opts.ImportDirs))
		}
	default:
		return profiles.Profile{}, fmt.Errorf("unsupported dbmodel %q", opts.DBModel)
	}

	for _, dir := range opts.ImportDirs {
		info, err := os.Stat(dir)
		if err != nil {
			return profiles.Profile{}, fmt.Errorf("import directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return profiles.Profile{}, fmt.Errorf("import path %s is not a directory", dir)
		}
	}

	return prof, nil
}

// deriveSingleIdentifier 按目录名启发式生成单机标识符 hostname_sid_date。
func deriveSingleIdentifier(dir string) string {
	base, ok := manifest.ParseDirName(filepath.Base(dir))
	if !ok {
		slog.Warn("identifier derived from fallback identity", "dir", dir)
		base = manifest.FallbackIdentity(time.Now())
	}
	return fmt.Sprintf("%s_%s_%s", base.Hostname, base.SID, base.CollectDate)
}

func sanitizeIdentifier(s string) string {
	return identifierSanitizer.ReplaceAllString(s, "_")
}

func validateDocument(doc *model.MetaDocument) error {
	v, err := schema.NewValidator()
	if err != nil {
		return err
	}
	return v.Validate(doc)
}

// persistDocument 把文档以 2 空格缩进的 JSON 写入规范命名的文件，
// 返回绝对路径。
func persistDocument(doc *model.MetaDocument, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	name := schema.EncodeFilename(doc.DBType, doc.DBModel, doc.Identifier)
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

func failedRun(res *Result, opts Options, started time.Time) model.IngestRun {
	return model.IngestRun{
		RunID:      res.RunID,
		DBType:     opts.DBType,
		DBModel:    opts.DBModel,
		Identifier: res.Identifier,
		Status:     "failed",
		StartedAt:  started.Unix(),
		FinishedAt: time.Now().Unix(),
	}
}

func consistencyStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "warning"
}

// recorder 把运行留痕收敛为可空对象：留痕未启用或库不可用时全部为空操作。
type recorder struct {
	db    *sql.DB
	store *sqlitestore.Store
}

func newRecorder(ctx context.Context, path string) (*recorder, error) {
	if path == "" {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// 单连接加 busy_timeout，避免本地并发打开时的 database is locked。
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := sqlitestore.NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	return &recorder{db: db, store: sqlitestore.NewStore(db)}, nil
}

func (r *recorder) event(ctx context.Context, runID, eventType, status, message string, detail any) {
	if r == nil {
		return
	}
	if err := r.store.AppendEvent(ctx, runID, eventType, status, message, detail); err != nil {
		slog.Warn("append run event", "error", err)
	}
}

func (r *recorder) finish(ctx context.Context, run model.IngestRun) {
	if r == nil {
		return
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		slog.Warn("save run record", "error", err)
	}
}

func (r *recorder) close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}
