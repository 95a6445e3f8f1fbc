// Package manifest 读取单个巡检目录的 file_status.json 清单，
// 并把不同版本采集脚本产出的字段差异归一化为统一的节点记录。
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fastdbchkrep/internal/domain/model"
)

// FileName 是清单文件的固定名称，由采集脚本约定。
const FileName = "file_status.json"

var (
	// ErrMissingManifest 表示目录下没有 file_status.json，对该目录是硬错误。
	ErrMissingManifest = errors.New("file_status.json not found")
	// ErrMalformedManifest 表示清单不是合法 JSON，或缺少必需字段（含同义字段对）。
	ErrMalformedManifest = errors.New("malformed file_status.json")
)

// Manifest 是清单解析后的归一化结果。
// 同义字段（sid/oracle_sid、collect_date/inspection_time）已经按
// 固定的先后顺序折叠为单一字段。
type Manifest struct {
	Hostname    string
	SID         string // sid 优先，其次 oracle_sid；可能为空（由调用方按 profile 决定是否强制）
	HasSID      bool   // 清单中是否出现过 sid 或 oracle_sid 字段
	DBName      string // 清单可选的 dbname
	CollectDate string // collect_date 优先，其次 inspection_time 前 10 位去掉 '-'
	DBModel     string // 清单可选的 db_model，仅用于一致性检查
	Files       map[string]model.FileEntry
}

// Read 读取并解析目录下的清单文件。
// 清单缺失返回 ErrMissingManifest；JSON 非法或必需字段缺失返回 ErrMalformedManifest。
func Read(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingManifest, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedManifest, path, err)
	}

	m, err := resolveFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedManifest, path, err)
	}

	files, err := normalizeFiles(dir, data["files"])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedManifest, path, err)
	}
	m.Files = files

	return m, nil
}

// resolveFields 是对原始清单的纯函数式字段折叠：
// 每个逻辑字段按固定顺序 try-then-fallback，缺少整对同义字段才算错误。
func resolveFields(data map[string]any) (*Manifest, error) {
	m := &Manifest{}

	hostname, ok := data["hostname"]
	if !ok {
		return nil, errors.New("missing required field hostname")
	}
	m.Hostname = asString(hostname)

	if v, ok := data["sid"]; ok {
		m.SID = asString(v)
		m.HasSID = true
	} else if v, ok := data["oracle_sid"]; ok {
		m.SID = asString(v)
		m.HasSID = true
	}

	_, hasDate := data["collect_date"]
	_, hasTime := data["inspection_time"]
	if !hasDate && !hasTime {
		return nil, errors.New("missing required field collect_date or inspection_time")
	}
	m.CollectDate = asString(data["collect_date"])
	if m.CollectDate == "" && hasTime {
		// inspection_time 形如 2025-08-26T10:45:29+0800，取日期部分转 YYYYMMDD。
		t := asString(data["inspection_time"])
		if len(t) >= 10 {
			m.CollectDate = strings.ReplaceAll(t[:10], "-", "")
		}
	}

	if _, ok := data["files"]; !ok {
		return nil, errors.New("missing required field files")
	}

	m.DBName = asString(data["dbname"])
	m.DBModel = asString(data["db_model"])

	return m, nil
}

// normalizeFiles 把清单的文件区统一为 map 形状。
// 兼容两种输入：对象数组（按文件名 stem 生成 key）和已经按 key 组织的对象。
func normalizeFiles(dir string, raw any) (map[string]model.FileEntry, error) {
	out := make(map[string]model.FileEntry)

	switch files := raw.(type) {
	case []any:
		for _, item := range files {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			filename := asString(entry["filename"])
			if filename == "" {
				continue
			}
			out[stem(filename)] = fileEntry(dir, filename, entry)
		}
	case map[string]any:
		for key, item := range files {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			filename := asString(entry["filename"])
			fe := fileEntry(dir, filename, entry)
			if filename == "" {
				fe.Path = ""
			}
			out[key] = fe
		}
	default:
		return nil, fmt.Errorf("files must be an array or an object, got %T", raw)
	}

	return out, nil
}

func fileEntry(dir, filename string, entry map[string]any) model.FileEntry {
	return model.FileEntry{
		Path:     filepath.Join(dir, filename),
		Exists:   asBool(entry["exists"]),
		Size:     asUint64(entry["size"]),
		Modified: asString(entry["modified"]),
	}
}

// stem 返回不带扩展名的文件名，作为 files map 的 key。
func stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case int:
		if n < 0 {
			return 0
		}
		return uint64(n)
	default:
		return 0
	}
}
