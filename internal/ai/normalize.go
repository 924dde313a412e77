package ai

import (
	"bytes"
	"encoding/json"
	"strings"

	"resumeforge/internal/errcode"
	"resumeforge/internal/resume"
)

type rawRecommendation struct {
	Type      any             `json:"type"`
	Current   any             `json:"current"`
	Suggested any             `json:"suggested"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Normalize 解析模型输出并整理为建议列表：
// type 统一小写，无法识别时归为 summary；current/suggested 缺失时为空串；
// metadata 原样保留；status 一律为 pending。
// 顶层不是对象或缺少 recommendations 数组时返回 errcode.Misc。
func Normalize(content []byte) ([]resume.Recommendation, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(content, &top); err != nil {
		return nil, errcode.Wrap(errcode.Misc, "malformed model output", err)
	}
	rawList, ok := top["recommendations"]
	if !ok {
		return nil, errcode.New(errcode.Misc, "model output has no recommendations")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawList, &items); err != nil || items == nil {
		return nil, errcode.New(errcode.Misc, "recommendations is not an array")
	}

	out := make([]resume.Recommendation, 0, len(items))
	for _, item := range items {
		var raw rawRecommendation
		if err := json.Unmarshal(item, &raw); err != nil {
			return nil, errcode.Wrap(errcode.Misc, "malformed recommendation", err)
		}
		out = append(out, resume.Recommendation{
			Type:      normalizeCategory(raw.Type),
			Current:   text(raw.Current),
			Suggested: text(raw.Suggested),
			Metadata:  metadata(raw.Metadata),
			Status:    resume.StatusPending,
		})
	}
	return out, nil
}

func normalizeCategory(v any) resume.Category {
	s, _ := v.(string)
	c := resume.Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return resume.CategorySummary
	}
	return c
}

// text 接受字符串；其他非空值按 JSON 文本保留。
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func metadata(m json.RawMessage) json.RawMessage {
	if len(m) == 0 || bytes.Equal(bytes.TrimSpace(m), []byte("null")) {
		return nil
	}
	return m
}
