// Package sanitize 提供送入 AI 提供商之前的文本净化
//
// AI 返回的分析文本中可能夹带 emoji/图形字符，这些字符再次嵌入
// 合成提示词并序列化为 JSON 时会破坏下游编码，因此任何把历史
// 分析文本拼进提示词的调用，都必须先经过这里的净化。
package sanitize

import "strings"

// Text 过滤掉不可打印与非 ASCII 码点
// 保留字符集合约定：可打印 ASCII (0x20-0x7E) + 换行 + 制表符
// 其余字符一律移除，不做替换
func Text(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r >= 0x20 && r <= 0x7E {
			return r
		}
		return -1
	}, s)
}

// Lines 对每个元素做 Text 净化，并丢弃净化后为空白的元素
func Lines(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		cleaned := strings.TrimSpace(Text(s))
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
