package visionai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON 从提供商返回的自由文本中提取 JSON 对象
// 先剥离 ``` 围栏（含 ```json 变体），再截取首个 { 到末个 } 之间的内容，
// 最后校验其确为合法 JSON。任何一步失败都返回 ErrBadResponse。
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)

	// 剥离代码围栏
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json object found", ErrBadResponse)
	}
	candidate := []byte(s[start : end+1])

	if !json.Valid(candidate) {
		return nil, fmt.Errorf("%w: invalid json", ErrBadResponse)
	}
	return candidate, nil
}

// DecodeJSON 提取并反序列化到目标结构
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s", ErrBadResponse, err.Error())
	}
	return nil
}
