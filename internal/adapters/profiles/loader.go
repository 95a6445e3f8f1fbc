package profiles

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"fastdbchkrep/internal/domain/model"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultRaw []byte

// Profile 描述一种 dbtype 的解析策略。
type Profile struct {
	DBType        string   `yaml:"-"`
	RequiredFiles []string `yaml:"required_files"`
	// FixedSID 非空时节点 SID 不做推导，直接使用该值（MySQL 场景）。
	FixedSID string `yaml:"fixed_sid"`
}

// Set 是加载后的 profile 集合及其来源哈希，用于运行留痕。
type Set struct {
	Source   string // builtin 或文件路径
	SHA256   string
	profiles map[string]Profile
}

type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadDefault 加载内置的 profile 集合。
func LoadDefault() (*Set, error) {
	return parse(defaultRaw, "builtin")
}

// LoadFile 从外部 YAML 加载 profile 集合，path 为空时退回内置默认。
func LoadFile(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return LoadDefault()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}
	return parse(raw, path)
}

func parse(raw []byte, source string) (*Set, error) {
	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse profile file: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("profile file %s defines no profiles", source)
	}

	for dbtype, p := range f.Profiles {
		if strings.TrimSpace(dbtype) == "" {
			return nil, fmt.Errorf("profile with empty dbtype in %s", source)
		}
		if len(p.RequiredFiles) == 0 {
			return nil, fmt.Errorf("profile %s has no required_files", dbtype)
		}
		p.DBType = dbtype
		f.Profiles[dbtype] = p
	}

	sum := sha256.Sum256(raw)
	return &Set{
		Source:   source,
		SHA256:   hex.EncodeToString(sum[:]),
		profiles: f.Profiles,
	}, nil
}

// Get 返回指定 dbtype 的 profile。
func (s *Set) Get(dbtype model.DBType) (Profile, bool) {
	p, ok := s.profiles[string(dbtype)]
	return p, ok
}

// Supported 返回支持的 dbtype 列表（字典序，便于错误信息稳定）。
func (s *Set) Supported() []string {
	out := make([]string, 0, len(s.profiles))
	for k := range s.profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
