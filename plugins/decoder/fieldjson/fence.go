package fieldjson

import "strings"

const fence = "```"

// UnwrapFence 去除响应首尾的 Markdown 代码围栏（可带语言标记，如 ```json）。
// 前置：任意文本。后置：返回去除围栏与首尾空白后的正文；found 表示是否遇到围栏。
// 无围栏时原样返回（仅去首尾空白）；仅有开围栏或仅有闭围栏时分别处理。
func UnwrapFence(s string) (body string, found bool) {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, fence) {
		found = true
		t = t[len(fence):]
		// 语言标记只占开围栏所在行；单行形式 ```{"a":1}``` 没有换行也要处理
		if nl := strings.IndexByte(t, '\n'); nl >= 0 {
			tag := strings.TrimSpace(t[:nl])
			if isLangTag(tag) {
				t = t[nl+1:]
			}
		} else {
			t = strings.TrimLeft(t, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		}
	}
	t = strings.TrimSpace(t)
	if strings.HasSuffix(t, fence) {
		found = true
		t = strings.TrimSpace(t[:len(t)-len(fence)])
	}
	return t, found
}

// isLangTag: 围栏语言标记只能是空或字母数字/连字符（json、JSON、json5 …）。
func isLangTag(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
