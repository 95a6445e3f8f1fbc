// Package topology 负责 RAC 集群的多节点归并：
// 从 2-4 个兄弟目录构建集群视图、做跨节点一致性检查、
// 合并为带节点编号的 metainfo，并推导集群级标识符。
package topology

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"fastdbchkrep/internal/adapters/manifest"
	"fastdbchkrep/internal/adapters/profiles"
	"fastdbchkrep/internal/domain/model"
)

// ErrNoValidNodes 表示所有候选目录都无法解析为有效节点。
// 只有在这种情况下集群构建才整体失败，个别节点失败只会被剔除。
var ErrNoValidNodes = errors.New("no valid cluster nodes")

// trailingDigits 用于从实例名推导库名、从主机名推导集群名：
// hnoms1 -> hnoms，oms-db2 -> oms-db。这是 RAC 的固定命名规则。
var trailingDigits = regexp.MustCompile(`\d+$`)

// Node 是集群视图里的一个节点，保留推导用的原始字段。
type Node struct {
	Directory   string
	DirName     string
	Hostname    string
	SID         string
	DBName      string // 由 SID 去掉尾部数字得到；清单覆盖 SID 后会重新推导
	CollectDate string
	DBModel     string // 清单 db_model，仅用于一致性检查
	Manifest    *manifest.Manifest
}

func (n *Node) valid() bool {
	return n.Hostname != "" && n.SID != "" && n.DBName != "" && n.Manifest != nil
}

// Cluster 是集群级聚合，不直接持久化，
// 由调用方投影为文档的 metainfo 和 cluster_info。
type Cluster struct {
	Nodes       []*Node
	DBName      string
	ClusterName string
	CollectDate string

	prof profiles.Profile
}

// BuildCluster 解析候选目录并组装集群视图。
// 单个目录缺失或清单非法只会告警并跳过该节点；全部失败才返回错误。
func BuildCluster(dirs []string, prof profiles.Profile) (*Cluster, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: no directories given", ErrNoValidNodes)
	}

	nodes := make([]*Node, 0, len(dirs))
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			slog.Warn("cluster node directory not found, skipped", "dir", dir)
			continue
		}
		node := parseNode(dir)
		if !node.valid() {
			slog.Warn("invalid cluster node directory, skipped", "dir", dir)
			continue
		}
		slog.Info("cluster node resolved", "hostname", node.Hostname, "sid", node.SID)
		nodes = append(nodes, node)
	}

	if len(nodes) == 0 {
		return nil, ErrNoValidNodes
	}

	c := &Cluster{Nodes: nodes, prof: prof}
	c.extractClusterInfo()
	return c, nil
}

// parseNode 先按目录名推导标识，再用清单声明值覆盖。
// 清单覆盖了 SID 之后必须重新从 SID 推导 DBName。
func parseNode(dir string) *Node {
	n := &Node{
		Directory: dir,
		DirName:   filepath.Base(dir),
	}

	if base, ok := manifest.ParseDirName(n.DirName); ok {
		n.Hostname = base.Hostname
		n.SID = base.SID
		n.CollectDate = base.CollectDate
	} else {
		slog.Warn("non-standard cluster directory name", "dir", n.DirName)
	}

	m, err := manifest.Read(dir)
	if err != nil {
		slog.Warn("cluster node manifest unusable", "dir", dir, "error", err)
		return n
	}
	n.Manifest = m

	if m.Hostname != "" {
		n.Hostname = m.Hostname
	}
	if m.SID != "" {
		n.SID = m.SID
	}
	if n.CollectDate == "" {
		n.CollectDate = m.CollectDate
	}
	n.DBModel = m.DBModel
	n.DBName = trailingDigits.ReplaceAllString(n.SID, "")

	return n
}

// extractClusterInfo 聚合集群级字段。
// 节点间不一致在这里只影响取值（告警后取第一个/最新的），
// 结构化的不一致报告由 Consistency 给出。
func (c *Cluster) extractClusterInfo() {
	for _, n := range c.Nodes {
		if n.DBName == "" {
			continue
		}
		if c.DBName == "" {
			c.DBName = n.DBName
		} else if c.DBName != n.DBName {
			slog.Warn("dbname differs between cluster nodes",
				"first", c.DBName, "other", n.DBName)
		}
	}

	for _, n := range c.Nodes {
		if n.CollectDate == "" {
			continue
		}
		// 日期不一致时取最新的一份。
		if n.CollectDate > c.CollectDate {
			c.CollectDate = n.CollectDate
		}
	}

	c.ClusterName = trailingDigits.ReplaceAllString(c.Nodes[0].Hostname, "")
}

// Consistency 做跨节点一致性检查，只报告不阻断：
// dbname、collect_date、db_model 的取值集合超过一个成员即为问题；
// db_model 出现但不含 rac 也是问题。调用方记日志后照常继续。
func (c *Cluster) Consistency() (bool, []string) {
	var issues []string

	dbnames := distinct(c.Nodes, func(n *Node) string { return n.DBName })
	if len(dbnames) > 1 {
		issues = append(issues, fmt.Sprintf("dbname differs between nodes: %v", dbnames))
	}

	dates := distinct(c.Nodes, func(n *Node) string { return n.CollectDate })
	if len(dates) > 1 {
		issues = append(issues, fmt.Sprintf("collect_date differs between nodes: %v", dates))
	}

	models := distinct(c.Nodes, func(n *Node) string { return n.DBModel })
	if len(models) > 1 {
		issues = append(issues, fmt.Sprintf("db_model differs between nodes: %v", models))
	} else if len(models) == 1 && models[0] != "rac" {
		issues = append(issues, fmt.Sprintf("db_model is not rac: %v", models))
	}

	return len(issues) == 0, issues
}

// distinct 返回按节点顺序去重后的非空取值集合。
func distinct(nodes []*Node, get func(*Node) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range nodes {
		v := get(n)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Merge 把集群节点投影为文档的 metainfo 记录，
// 节点编号按输入顺序从 1 开始，必需文件检查与单机模式同规则。
func (c *Cluster) Merge() []model.NodeRecord {
	records := make([]model.NodeRecord, 0, len(c.Nodes))
	for i, n := range c.Nodes {
		rec := model.NodeRecord{
			Hostname:    n.Hostname,
			SID:         n.SID,
			DBName:      n.DBName,
			CollectDate: n.CollectDate,
			SourceDir:   n.Directory,
			NodeInfo: &model.NodeInfo{
				NodeNumber: i + 1,
				NodeName:   fmt.Sprintf("node%d", i+1),
			},
			Files: n.Manifest.Files,
		}
		rec.ValidationStatus = manifest.CheckRequiredFiles(n.Directory, c.prof, rec.Files)
		records = append(records, rec)
	}
	return records
}

// DeriveIdentifier 生成集群标识符 {cluster_name}_{dbname}_{collect_date}，
// 空字段跳过；三者全空时退回第一个节点的目录名。
func (c *Cluster) DeriveIdentifier() string {
	var parts []string
	for _, p := range []string{c.ClusterName, c.DBName, c.CollectDate} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		out := parts[0]
		for _, p := range parts[1:] {
			out += "_" + p
		}
		return out
	}
	if len(c.Nodes) > 0 {
		return c.Nodes[0].DirName
	}
	return "unknown_rac"
}
