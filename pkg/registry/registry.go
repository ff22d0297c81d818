package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"jdextract/pkg/contract"
	acsv "jdextract/plugins/assembler/csv"
	axlsx "jdextract/plugins/assembler/xlsx"
	dfj "jdextract/plugins/decoder/fieldjson"
	flaky "jdextract/plugins/llmclient/flaky"
	gmi "jdextract/plugins/llmclient/gemini"
	mock "jdextract/plugins/llmclient/mock"
	oai "jdextract/plugins/llmclient/openai"
	pjd "jdextract/plugins/prompt/judgment"
	rfs "jdextract/plugins/reader/filesystem"
	rs3 "jdextract/plugins/reader/s3"
	scsv "jdextract/plugins/rowsource/csv"
	sxlsx "jdextract/plugins/rowsource/xlsx"
	wfs "jdextract/plugins/writer/filesystem"
	ws3 "jdextract/plugins/writer/s3"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewRowSource 工厂签名：接收原样 JSON Options。
type NewRowSource func(raw json.RawMessage) (contract.RowSource, error)

// NewPromptBuilder 工厂签名：接收原样 JSON Options。
type NewPromptBuilder func(raw json.RawMessage) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：接收原样 JSON Options。
type NewLLMClient func(raw json.RawMessage) (contract.LLMClient, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 本地文件/STDIN
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
	// s3: S3 兼容对象存储
	"s3": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rs3.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rs3.New(context.Background(), &opts)
	},
}

// RowSource 工厂注册表。
var RowSource = map[string]NewRowSource{
	"xlsx": func(raw json.RawMessage) (contract.RowSource, error) {
		var opts sxlsx.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sxlsx.New(&opts), nil
	},
	"csv": func(raw json.RawMessage) (contract.RowSource, error) {
		var opts scsv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return scsv.New(&opts)
	},
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// judgment: 裁判文书要素抽取（system 指令 + 参考 + 正文）
	"judgment": func(raw json.RawMessage) (contract.PromptBuilder, error) {
		var opts pjd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pjd.New(&opts)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai": func(raw json.RawMessage) (contract.LLMClient, error) { return oai.New(raw) },
	"gemini": func(raw json.RawMessage) (contract.LLMClient, error) { return gmi.New(raw) },
	"mock":   func(raw json.RawMessage) (contract.LLMClient, error) { return mock.New(raw) },
	"flaky":  func(raw json.RawMessage) (contract.LLMClient, error) { return flaky.New(raw) },
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// fieldjson: 去围栏后解析为有序字段对象
	"fieldjson": func(raw json.RawMessage) (contract.Decoder, error) { return dfj.New(raw) },
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	"xlsx": func(raw json.RawMessage) (contract.Assembler, error) { return axlsx.New(raw) },
	"csv":  func(raw json.RawMessage) (contract.Assembler, error) { return acsv.New(raw) },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 本地文件（默认原子替换）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	"s3": func(raw json.RawMessage) (contract.Writer, error) {
		var opts ws3.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ws3.New(context.Background(), &opts)
	},
}

// Names 返回注册表键的有序列表，用于配置校验的错误提示。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
