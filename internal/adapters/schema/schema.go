package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"fastdbchkrep/internal/domain/model"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed document_v2.json
var documentSchemaRaw []byte

// IdentifierPattern 是 identifier 的合法字符集。
// 文件名和下游报告都以它做关联键，因此字符集必须收紧。
var IdentifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FilenamePattern 匹配元数据 JSON 的命名规范：(dbtype-dbmodel)-identifier.json。
// dbtype 部分允许下划线，兼容历史值 oracle_db_file。
var FilenamePattern = regexp.MustCompile(`^\(([a-z_]+)-([a-z]+)\)-([A-Za-z0-9_-]+)\.json$`)

var collectDatePattern = regexp.MustCompile(`^\d{8}$`)

// Validator 按内嵌的 JSON Schema 加结构化补充规则校验元数据文档。
// Schema 覆盖字段形状；Schema 语言表达不了的跨字段约束
// （单机/RAC 节点数、node_number 唯一性）由 Go 侧补充。
type Validator struct {
	compiled *gojsonschema.Schema
}

// NewValidator 编译内嵌 Schema。编译失败属于程序缺陷而非输入问题。
func NewValidator() (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(documentSchemaRaw))
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate 校验文档是否符合 v2 格式。纯函数，不产生副作用。
//
// 注意：调用方即使拿到校验错误也会照常持久化文档，只做日志记录。
// 这是沿用采集侧“尽量产出工件”的既定策略，不要在这里改成硬失败。
func (v *Validator) Validate(doc *model.MetaDocument) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	result, err := v.compiled.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("evaluate document schema: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
	}

	return v.validateStructure(doc)
}

// validateStructure 补充 Schema 覆盖不到的跨字段约束。
func (v *Validator) validateStructure(doc *model.MetaDocument) error {
	switch doc.DBModel {
	case model.DBModelSingle:
		if len(doc.Metainfo) != 1 {
			return fmt.Errorf("dbmodel one requires exactly 1 metainfo record, got %d", len(doc.Metainfo))
		}
	case model.DBModelRAC:
		// 统一按 2-4 收口，历史上 Schema 只查下限。
		if len(doc.Metainfo) < 2 || len(doc.Metainfo) > 4 {
			return fmt.Errorf("dbmodel rac requires 2-4 metainfo records, got %d", len(doc.Metainfo))
		}
	default:
		return fmt.Errorf("unsupported dbmodel %q", doc.DBModel)
	}

	seen := make(map[int]bool, len(doc.Metainfo))
	for i, rec := range doc.Metainfo {
		if !collectDatePattern.MatchString(rec.CollectDate) {
			return fmt.Errorf("metainfo[%d].collect_date %q is not YYYYMMDD", i, rec.CollectDate)
		}

		if doc.DBModel != model.DBModelRAC {
			continue
		}
		if rec.NodeInfo == nil {
			return fmt.Errorf("metainfo[%d] is missing node_info in rac mode", i)
		}
		n := rec.NodeInfo.NodeNumber
		if n < 1 || n > 4 {
			return fmt.Errorf("metainfo[%d].node_info.node_number %d out of range 1-4", i, n)
		}
		if seen[n] {
			return fmt.Errorf("metainfo[%d].node_info.node_number %d is duplicated", i, n)
		}
		seen[n] = true
		if rec.NodeInfo.NodeName == "" {
			return fmt.Errorf("metainfo[%d].node_info.node_name is empty", i)
		}
	}

	return nil
}

// EncodeFilename 按命名规范生成元数据 JSON 文件名。
func EncodeFilename(dbtype model.DBType, dbmodel model.DBModel, identifier string) string {
	return fmt.Sprintf("(%s-%s)-%s.json", dbtype, dbmodel, identifier)
}

// DecodeFilename 解析命名规范，提取 dbtype / dbmodel / identifier。
// 不符合规范时 ok 为 false。
func DecodeFilename(name string) (dbtype model.DBType, dbmodel model.DBModel, identifier string, ok bool) {
	m := FilenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", false
	}
	return model.DBType(m[1]), model.DBModel(m[2]), m[3], true
}
