// Package runverify 对运行事件哈希链做事后强校验，
// 用于确认留痕库中的事件序列没有被改动或丢失。
package runverify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"fastdbchkrep/internal/domain/model"
	"fastdbchkrep/internal/platform/hash"
)

// FailureItem 表示一条校验失败明细。
type FailureItem struct {
	Index      int    `json:"index"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OccurredAt int64  `json:"occurred_at"`

	// PrevHashMismatch 表示 chain_prev_hash 与上一条的 chain_hash 不连续。
	PrevHashMismatch bool   `json:"prev_hash_mismatch"`
	ExpectedPrevHash string `json:"expected_prev_hash,omitempty"`
	ActualPrevHash   string `json:"actual_prev_hash,omitempty"`

	// ChainHashMismatch 表示 chain_hash 与按公式重算的值不一致。
	ChainHashMismatch bool   `json:"chain_hash_mismatch"`
	ExpectedChainHash string `json:"expected_chain_hash,omitempty"`
	ActualChainHash   string `json:"actual_chain_hash,omitempty"`
}

// Result 是一次链路校验的汇总结果。
type Result struct {
	OK              bool          `json:"ok"`
	Total           int           `json:"total"`
	Failed          int           `json:"failed"`
	PrevHashFailed  int           `json:"prev_hash_failed"`
	ChainHashFailed int           `json:"chain_hash_failed"`
	LastChainHash   string        `json:"last_chain_hash,omitempty"`
	Failures        []FailureItem `json:"failures,omitempty"`
}

// VerifyRunEvents 校验一次运行的事件链：
// 1) chain_prev_hash 连续性
// 2) 按写入公式重算 chain_hash 并比对
//
// 重算公式必须与 Store.AppendEvent 保持一致。
func VerifyRunEvents(events []model.RunEvent) Result {
	res := Result{
		OK:       true,
		Total:    len(events),
		Failures: []FailureItem{},
	}

	prev := ""
	for i, e := range events {
		expectedPrev := prev
		actualPrev := strings.TrimSpace(e.ChainPrevHash)

		// detail_json 入库时是紧凑 JSON；比对前先 compact，
		// 消除仅格式不同造成的假阳性。
		detail := compactJSON(e.DetailJSON)
		expectedChain := hash.Text(
			expectedPrev,
			e.RunID,
			e.EventType,
			e.Status,
			e.Message,
			fmt.Sprintf("%d", e.OccurredAt),
			detail,
		)

		item := FailureItem{
			Index:      i,
			EventID:    e.EventID,
			EventType:  e.EventType,
			OccurredAt: e.OccurredAt,
		}

		if actualPrev != expectedPrev {
			item.PrevHashMismatch = true
			item.ExpectedPrevHash = expectedPrev
			item.ActualPrevHash = actualPrev
			res.PrevHashFailed++
		}
		if e.ChainHash != expectedChain {
			item.ChainHashMismatch = true
			item.ExpectedChainHash = expectedChain
			item.ActualChainHash = e.ChainHash
			res.ChainHashFailed++
		}

		if item.PrevHashMismatch || item.ChainHashMismatch {
			res.OK = false
			res.Failed++
			res.Failures = append(res.Failures, item)
		}

		prev = e.ChainHash
	}

	res.LastChainHash = prev
	return res
}

func compactJSON(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
