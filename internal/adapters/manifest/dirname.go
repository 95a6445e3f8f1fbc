package manifest

import (
	"regexp"
	"time"
)

// DirNamePattern 匹配采集目录的命名约定 {hostname}_{sid}_{YYYYMMDD}。
// sid 段允许再含下划线（中间段整体作为 sid/dbname），
// 日期段必须是 8 位数字。
var DirNamePattern = regexp.MustCompile(`^([^_]+)_(.+)_(\d{8})$`)

// DirIdentity 是从目录名推导出的降级标识，
// 清单中声明的同名字段始终优先于它。
type DirIdentity struct {
	Hostname    string
	SID         string
	DBName      string
	CollectDate string
	Derived     bool // true 表示来自目录名；false 表示 unknown 兜底
}

// ParseDirName 按命名约定拆解目录名。
// 不匹配时返回 ok=false，调用方应换用 FallbackIdentity 并记告警。
func ParseDirName(name string) (DirIdentity, bool) {
	m := DirNamePattern.FindStringSubmatch(name)
	if m == nil {
		return DirIdentity{}, false
	}
	return DirIdentity{
		Hostname:    m[1],
		SID:         m[2],
		DBName:      m[2],
		CollectDate: m[3],
		Derived:     true,
	}, true
}

// FallbackIdentity 是目录名完全无法解析时的兜底标识：
// 字面 unknown 加当前日期。解析照常继续，只是身份信息降级。
func FallbackIdentity(now time.Time) DirIdentity {
	return DirIdentity{
		Hostname:    "unknown",
		SID:         "unknown",
		DBName:      "unknown",
		CollectDate: now.Format("20060102"),
	}
}
