package topology

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// RACDirPattern 匹配 RAC 节点目录命名 {prefix}{N}_{sidPrefix}{M}_{YYYYMMDD}，
// 例如 oms-db1_hnoms1_20250826。前缀部分用于分组，数字段区分节点。
var RACDirPattern = regexp.MustCompile(`^(.+?)(\d+)_(.+?)(\d+)_(\d{8})$`)

// AutoDiscover 扫描 baseDir 的直接子目录，把命名模式相同
// （prefix、sidPrefix、date 三元组一致）的目录归为一个集群候选组，
// 返回规模最大的组（按目录名排序保证节点顺序确定）。
//
// 规模相同的组之间按组 key 字典序取最小的一组，使结果可复现。
// 没有任何组达到 2 个成员时返回空。
func AutoDiscover(baseDir string) []string {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		slog.Warn("auto-discovery base directory unreadable", "dir", baseDir, "error", err)
		return nil
	}

	groups := make(map[string][]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := RACDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		key := m[1] + "_" + m[3] + "_" + m[5]
		groups[key] = append(groups[key], filepath.Join(baseDir, entry.Name()))
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var best []string
	for _, k := range keys {
		if len(groups[k]) > len(best) {
			best = groups[k]
		}
	}
	if len(best) < 2 {
		return nil
	}

	sort.Strings(best)
	slog.Info("cluster candidate discovered", "nodes", len(best))
	return best
}
