package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fastdbchkrep/internal/adapters/profiles"
	"fastdbchkrep/internal/domain/model"
)

// Resolve 把一个巡检目录解析为归一化的节点记录：
// 1) 读取并折叠 file_status.json
// 2) 目录名推导降级标识，清单声明值优先
// 3) 按 profile 检查必需文件，软失败只标记不剔除
//
// nodeNumber > 0 时附加 RAC 节点信息（1-4）。
func Resolve(dir string, prof profiles.Profile, nodeNumber int) (*model.NodeRecord, error) {
	m, err := Read(dir)
	if err != nil {
		return nil, err
	}

	// MySQL 等固定 SID 的类型不要求清单携带 sid 字段。
	if prof.FixedSID == "" && !m.HasSID {
		return nil, fmt.Errorf("%w: %s: missing required field sid or oracle_sid",
			ErrMalformedManifest, filepath.Join(dir, FileName))
	}

	base, ok := ParseDirName(filepath.Base(dir))
	if !ok {
		slog.Warn("directory name does not match naming convention, identity degraded",
			"dir", dir)
		base = FallbackIdentity(time.Now())
	}

	rec := &model.NodeRecord{
		Hostname:    firstNonEmpty(m.Hostname, base.Hostname),
		SID:         firstNonEmpty(prof.FixedSID, m.SID, base.SID),
		DBName:      firstNonEmpty(m.DBName, base.DBName),
		CollectDate: firstNonEmpty(m.CollectDate, base.CollectDate),
		SourceDir:   dir,
		Files:       m.Files,
	}

	if nodeNumber > 0 {
		rec.NodeInfo = &model.NodeInfo{
			NodeNumber: nodeNumber,
			NodeName:   fmt.Sprintf("node%d", nodeNumber),
		}
	}

	rec.ValidationStatus = CheckRequiredFiles(dir, prof, rec.Files)

	return rec, nil
}

// CheckRequiredFiles 做两类磁盘核对：
// 1) profile 的必需文件是否真实存在
// 2) 清单声明的 exists 状态与磁盘实际是否一致
// 任何一项不符都只产生 failed 标记和告警日志，节点仍会进入文档。
func CheckRequiredFiles(dir string, prof profiles.Profile, files map[string]model.FileEntry) model.ValidationStatus {
	status := model.ValidationPassed

	for _, name := range prof.RequiredFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			slog.Warn("required file missing", "dbtype", prof.DBType, "path", path)
			status = model.ValidationFailed
		}
	}

	for key, fe := range files {
		if fe.Path == "" {
			continue
		}
		_, err := os.Stat(fe.Path)
		actual := err == nil
		if fe.Exists != actual {
			slog.Warn("file existence mismatch between manifest and disk",
				"file", key, "declared", fe.Exists, "actual", actual)
			status = model.ValidationFailed
		}
	}

	return status
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
