package model

import "time"

// SchemaVersion 是当前元数据 JSON 的格式版本号。
const SchemaVersion = "2.0"

// DBType 表示被巡检数据库的类型。
type DBType string

const (
	// DBTypeOracle 表示 Oracle 单机或 RAC 数据库。
	DBTypeOracle DBType = "oracle"
	// DBTypeOracleLegacy 是 oracle 的历史别名，老版本采集脚本仍会产生。
	DBTypeOracleLegacy DBType = "oracle_db_file"
	// DBTypeMySQL 表示 MySQL 数据库。
	DBTypeMySQL DBType = "mysql"
	// DBTypePostgreSQL 表示 PostgreSQL 数据库。
	DBTypePostgreSQL DBType = "postgresql"
	// DBTypeSQLServer 表示 SQL Server 数据库。
	DBTypeSQLServer DBType = "sqlserver"
)

// DBModel 表示数据库部署形态：单机或 RAC 集群。
type DBModel string

const (
	// DBModelSingle 单机模式，metainfo 恰好一个节点。
	DBModelSingle DBModel = "one"
	// DBModelRAC 集群模式，metainfo 2-4 个节点。
	DBModelRAC DBModel = "rac"
)

// ValidationStatus 表示单个节点的必需文件校验结果。
// 校验失败不会把节点从文档中剔除，只做标记（软失败）。
type ValidationStatus string

const (
	ValidationPassed ValidationStatus = "passed"
	ValidationFailed ValidationStatus = "failed"
)

// FileEntry 表示采集脚本应当产出的一个文件工件。
// 内容对本核心不透明，只索引路径、存在性和大小。
type FileEntry struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Size     uint64 `json:"size"`
	Modified string `json:"modified,omitempty"` // ISO-8601，可选
}

// NodeInfo 是 RAC 模式下的节点编号信息（单机模式为空）。
type NodeInfo struct {
	NodeNumber int    `json:"node_number"` // 1-4，文档内唯一
	NodeName   string `json:"node_name"`
}

// NodeRecord 是一个巡检目录归一化后的节点记录。
// 创建后不再变更，只会在集群模式补写 NodeInfo、
// 以及在必需文件检查后补写 ValidationStatus。
type NodeRecord struct {
	Hostname         string               `json:"hostname"`
	SID              string               `json:"sid"`
	DBName           string               `json:"dbname"`
	CollectDate      string               `json:"collect_date"` // YYYYMMDD
	SourceDir        string               `json:"source_dir"`
	NodeInfo         *NodeInfo            `json:"node_info,omitempty"`
	Files            map[string]FileEntry `json:"files"`
	ValidationStatus ValidationStatus     `json:"validation_status,omitempty"`
}

// ClusterInfo 是 RAC 模式下的集群级汇总信息。
type ClusterInfo struct {
	ClusterName      string `json:"cluster_name"`
	DBName           string `json:"dbname"`
	NodeCount        int    `json:"node_count"`
	ConsistencyCheck bool   `json:"consistency_check"`
}

// MetaDocument 是本核心产出的唯一工件：
// 描述一个数据库实例或一个多节点集群的版本化 JSON 文档，
// 下游报告渲染只消费这一份文档。
type MetaDocument struct {
	Version     string       `json:"version"`
	DBType      DBType       `json:"dbtype"`
	DBModel     DBModel      `json:"dbmodel"`
	Identifier  string       `json:"identifier"`
	Timestamp   string       `json:"timestamp"` // ISO-8601，持久化前最后写入
	Metainfo    []NodeRecord `json:"metainfo"`
	ClusterInfo *ClusterInfo `json:"cluster_info,omitempty"`
}

// NewMetaDocument 创建一个空的、符合当前版本号的文档骨架。
// Identifier 和 Timestamp 在持久化前会被最终确定。
func NewMetaDocument(dbtype DBType, dbmodel DBModel, identifier string) *MetaDocument {
	return &MetaDocument{
		Version:    SchemaVersion,
		DBType:     dbtype,
		DBModel:    dbmodel,
		Identifier: identifier,
		Timestamp:  time.Now().Format(time.RFC3339),
		Metainfo:   []NodeRecord{},
	}
}
