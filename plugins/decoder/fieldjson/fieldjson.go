package fieldjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"jdextract/pkg/contract"
)

// Options: 解码选项。
type Options struct {
	// RejectEmpty: 将空对象 {} 视为协议无效；默认接受（该行无抽取列）。
	RejectEmpty bool `json:"reject_empty"`
}

type decoder struct {
	opts Options
}

// New 从原样 JSON Options 创建解码器。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("fieldjson: options: %w", err)
		}
	}
	return &decoder{opts: opts}, nil
}

// Decode 去围栏后将正文解码为保持键序的 Fields。
// 正文必须恰好是一个 JSON 对象；其他情况一律包装 ErrResponseInvalid。
func (d *decoder) Decode(ctx context.Context, raw contract.Raw) (*contract.Fields, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	body, _ := UnwrapFence(raw.Text)
	if body == "" {
		return nil, fmt.Errorf("empty response: %w", contract.ErrResponseInvalid)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, contract.ErrResponseInvalid)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("top-level value is not an object: %w", contract.ErrResponseInvalid)
	}
	f, err := readObject(dec)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, contract.ErrResponseInvalid)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after object: %w", contract.ErrResponseInvalid)
	}
	if f.Len() == 0 && d.opts.RejectEmpty {
		return nil, fmt.Errorf("empty object: %w", contract.ErrResponseInvalid)
	}
	return f, nil
}

// readObject 读取 '{' 之后的键值对直到匹配的 '}'。
func readObject(dec *json.Decoder) (*contract.Fields, error) {
	f := contract.NewFields()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T", tok)
		}
		v, err := readValue(dec)
		if err != nil {
			return nil, err
		}
		f.Set(key, v)
	}
	if _, err := dec.Token(); err != nil { // '}'
		return nil, err
	}
	return f, nil
}

func readArray(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		v, err := readValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := dec.Token(); err != nil { // ']'
		return nil, err
	}
	return out, nil
}

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return readObject(dec)
		case '[':
			return readArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", v)
		}
	default:
		// string / json.Number / bool / nil
		return v, nil
	}
}

var _ contract.Decoder = (*decoder)(nil)
