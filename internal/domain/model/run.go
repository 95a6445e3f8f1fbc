package model

// IngestRun 是一次导入运行的落库记录（对应 ingest_runs 表）。
// 运行历史只用于运维留痕，元数据文档本身仍是单个 JSON 文件。
type IngestRun struct {
	RunID           string // 运行 ID
	DBType          string // 数据库类型
	DBModel         string // one / rac
	Identifier      string // 最终标识符
	OutputPath      string // 产出 JSON 路径
	OutputSHA256    string // 产出文件哈希
	NodeCount       int    // metainfo 节点数
	ConsistencyOK   bool   // RAC 一致性检查结果（单机恒为 true）
	ValidationError string // 文档校验错误（软失败，允许非空）
	Status          string // success / failed
	StartedAt       int64  // Unix 秒
	FinishedAt      int64  // Unix 秒
}

// RunEvent 是运行过程中的一条事件记录（对应 run_events 表）。
// 通过 chain_prev_hash / chain_hash 形成哈希链，供事后校验。
type RunEvent struct {
	EventID       string // 事件 ID
	RunID         string // 关联运行
	EventType     string // started / node_resolved / consistency / validated / persisted ...
	Status        string // ok / warning / failed
	Message       string // 人类可读描述
	DetailJSON    []byte // 事件细节 JSON
	OccurredAt    int64  // Unix 秒
	ChainPrevHash string // 上一条事件的 chain_hash
	ChainHash     string // 本条事件的链路哈希
}
