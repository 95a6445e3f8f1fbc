package app

// Config 存放应用级默认路径配置。
type Config struct {
	JSONOutDir  string // 元数据 JSON 输出目录
	AuditDBPath string // 运行留痕数据库路径
	ProfilePath string // 数据库类型 profile 覆盖文件（空则使用内置默认）
}

// DefaultConfig 返回本地运行环境的默认配置。
func DefaultConfig() Config {
	return Config{
		JSONOutDir:  "data/json",
		AuditDBPath: "data/dbchk_runs.db",
		ProfilePath: "",
	}
}
