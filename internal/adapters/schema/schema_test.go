package schema

import (
	"fmt"
	"strings"
	"testing"

	"fastdbchkrep/internal/domain/model"
)

// newDoc 构造一个通过校验的基准文档，节点数由 nodes 决定。
func newDoc(dbmodel model.DBModel, nodes int) *model.MetaDocument {
	doc := model.NewMetaDocument(model.DBTypeOracle, dbmodel, "oms-db_hnoms_20250826")
	for i := 0; i < nodes; i++ {
		rec := model.NodeRecord{
			Hostname:    fmt.Sprintf("oms-db%d", i+1),
			SID:         fmt.Sprintf("hnoms%d", i+1),
			DBName:      "hnoms",
			CollectDate: "20250826",
			SourceDir:   fmt.Sprintf("/import/oms-db%d_hnoms%d_20250826", i+1, i+1),
			Files: map[string]model.FileEntry{
				"01_system_info": {Path: "/import/01_system_info.txt", Exists: true, Size: 128},
			},
			ValidationStatus: model.ValidationPassed,
		}
		if dbmodel == model.DBModelRAC {
			rec.NodeInfo = &model.NodeInfo{NodeNumber: i + 1, NodeName: fmt.Sprintf("node%d", i+1)}
		}
		doc.Metainfo = append(doc.Metainfo, rec)
	}
	return doc
}

func mustValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidate_SingleOK(t *testing.T) {
	v := mustValidator(t)
	if err := v.Validate(newDoc(model.DBModelSingle, 1)); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
}

func TestValidate_RACOK(t *testing.T) {
	v := mustValidator(t)
	for _, n := range []int{2, 3, 4} {
		if err := v.Validate(newDoc(model.DBModelRAC, n)); err != nil {
			t.Fatalf("rac with %d nodes: %v", n, err)
		}
	}
}

func TestValidate_LegacyDBType(t *testing.T) {
	v := mustValidator(t)
	doc := newDoc(model.DBModelSingle, 1)
	doc.DBType = model.DBTypeOracleLegacy
	if err := v.Validate(doc); err != nil {
		t.Fatalf("oracle_db_file should stay valid: %v", err)
	}
}

func TestValidate_NodeCountOutOfRange(t *testing.T) {
	v := mustValidator(t)

	// 单机必须恰好 1 个节点。
	doc := newDoc(model.DBModelSingle, 1)
	doc.Metainfo = append(doc.Metainfo, doc.Metainfo[0])
	if err := v.Validate(doc); err == nil {
		t.Fatalf("expected error for dbmodel one with 2 records")
	}

	// RAC 统一按 2-4 收口。
	if err := v.Validate(newDoc(model.DBModelRAC, 1)); err == nil {
		t.Fatalf("expected error for rac with 1 record")
	}
	if err := v.Validate(newDoc(model.DBModelRAC, 5)); err == nil {
		t.Fatalf("expected error for rac with 5 records")
	}
}

func TestValidate_DuplicateNodeNumber(t *testing.T) {
	v := mustValidator(t)
	doc := newDoc(model.DBModelRAC, 2)
	doc.Metainfo[1].NodeInfo.NodeNumber = 1
	err := v.Validate(doc)
	if err == nil || !strings.Contains(err.Error(), "duplicated") {
		t.Fatalf("expected duplicate node_number error, got %v", err)
	}
}

func TestValidate_MissingNodeInfoInRAC(t *testing.T) {
	v := mustValidator(t)
	doc := newDoc(model.DBModelRAC, 2)
	doc.Metainfo[0].NodeInfo = nil
	if err := v.Validate(doc); err == nil {
		t.Fatalf("expected error for rac record without node_info")
	}
}

func TestValidate_BadCollectDate(t *testing.T) {
	v := mustValidator(t)
	doc := newDoc(model.DBModelSingle, 1)
	doc.Metainfo[0].CollectDate = "2025-08-26"
	if err := v.Validate(doc); err == nil {
		t.Fatalf("expected error for non-YYYYMMDD collect_date")
	}
}

func TestValidate_BadIdentifier(t *testing.T) {
	v := mustValidator(t)
	doc := newDoc(model.DBModelSingle, 1)
	doc.Identifier = "bad id/with spaces"
	if err := v.Validate(doc); err == nil {
		t.Fatalf("expected schema violation for identifier charset")
	}
}

func TestFilename_RoundTrip(t *testing.T) {
	cases := []struct {
		dbtype     model.DBType
		dbmodel    model.DBModel
		identifier string
		want       string
	}{
		{model.DBTypeOracle, model.DBModelRAC, "oms-db_hnoms_20250826", "(oracle-rac)-oms-db_hnoms_20250826.json"},
		{model.DBTypeMySQL, model.DBModelSingle, "web01_mysql_20250826", "(mysql-one)-web01_mysql_20250826.json"},
		// 历史别名的 dbtype 含下划线，命名规范必须能往返。
		{model.DBTypeOracleLegacy, model.DBModelSingle, "oms-db_hnoms_20250826", "(oracle_db_file-one)-oms-db_hnoms_20250826.json"},
	}

	for _, c := range cases {
		name := EncodeFilename(c.dbtype, c.dbmodel, c.identifier)
		if name != c.want {
			t.Fatalf("EncodeFilename got=%q want=%q", name, c.want)
		}
		dbtype, dbmodel, identifier, ok := DecodeFilename(name)
		if !ok {
			t.Fatalf("DecodeFilename(%q) failed", name)
		}
		if dbtype != c.dbtype || dbmodel != c.dbmodel || identifier != c.identifier {
			t.Fatalf("round trip got=(%s,%s,%s) want=(%s,%s,%s)",
				dbtype, dbmodel, identifier, c.dbtype, c.dbmodel, c.identifier)
		}
	}
}

func TestDecodeFilename_Reject(t *testing.T) {
	for _, name := range []string{
		"oracle-rac-oms.json",        // 缺括号
		"(oracle-rac)-oms.txt",       // 扩展名不对
		"(Oracle-rac)-oms.json",      // dbtype 大写
		"(oracle-rac)-bad id.json",   // identifier 含空格
		"(oracle)-oms.json",          // 缺 dbmodel
		"prefix-(oracle-rac)-x.json", // 前缀噪音
	} {
		if _, _, _, ok := DecodeFilename(name); ok {
			t.Fatalf("DecodeFilename(%q) should be rejected", name)
		}
	}
}
