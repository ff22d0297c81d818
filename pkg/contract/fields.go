package contract

import (
	"bytes"
	"encoding/json"
)

// Fields: 保持插入顺序的键值映射（oracle 返回的 JSON 对象）。
// 值为 JSON 标量（string/json.Number/bool/nil）、[]any 或嵌套 *Fields。
type Fields struct {
	keys []string
	vals map[string]any
}

// NewFields 创建空映射。
func NewFields() *Fields {
	return &Fields{vals: make(map[string]any)}
}

// Set 写入键值；重复键保留首次出现的位置，值以最后一次为准。
func (f *Fields) Set(k string, v any) {
	if f.vals == nil {
		f.vals = make(map[string]any)
	}
	if _, ok := f.vals[k]; !ok {
		f.keys = append(f.keys, k)
	}
	f.vals[k] = v
}

// Get 读取键值。
func (f *Fields) Get(k string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.vals[k]
	return v, ok
}

// Keys 返回按插入顺序的键（副本）。
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len 返回键数量。
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// MarshalJSON 按插入顺序输出对象。
func (f *Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(f.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
