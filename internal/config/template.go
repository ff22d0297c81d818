package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 使用 mock LLM（离线调试友好），输入 textExcel.xlsx，输出 output.xlsx；
// 各组件 Options 列出全部键，值取中性默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Input:                "textExcel.xlsx",
		Output:               "output.xlsx",
		ContentHeader:        "文书内容",
		Concurrency:          d.Concurrency,
		MaxAttempts:          d.MaxAttempts,
		BackoffFactorSeconds: d.BackoffFactorSeconds,
		RetryParseErrors:     d.RetryParseErrors,
		MaxTokens:            0,
		BytesPerToken:        d.BytesPerToken,
		Sidecar:              d.Sidecar,
		Logging:              d.Logging,
		Components: Components{
			Reader:        "fs",
			RowSource:     "xlsx",
			PromptBuilder: d.Components.PromptBuilder,
			Decoder:       d.Components.Decoder,
			Assembler:     "xlsx",
			Writer:        "fs",
		},
		LLM: "mock",
		Provider: map[string]Provider{
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"prefix":"","api_key":"","response_mode":"","fixed":"","delay_ms":0}`),
				Limits:  Limits{RPM: 60, TPM: 0, MaxTokensPerReq: 0},
			},
			"gemini": {
				Client: "gemini",
				Options: json.RawMessage(`{
  "model": "",
  "api_key_env": "GOOGLE_API_KEY",
  "api_key": "",
  "timeout_seconds": 120,
  "response_mime_type": "application/json",
  "endpoint": ""
}`),
				Limits: Limits{RPM: 10, TPM: 0, MaxTokensPerReq: 0},
			},
			"openai": {
				Client: "openai",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "timeout_seconds": 120,
  "json_mode": true,
  "endpoint_path": "",
  "disable_default_auth": false,
  "extra_headers": {}
}`),
				Limits: Limits{},
			},
		},
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "max_bytes": 0
}`)
	cfg.Options.RowSource = json.RawMessage(`{
  "sheet": "",
  "column": 1,
  "column_name": "",
  "header_row": true,
  "carry_columns": []
}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{
  "inline_instructions": "",
  "instructions_path": "",
  "inline_template": "",
  "template_path": "",
  "inline_reference": "",
  "reference_path": "upstream_crime_types.md"
}`)
	cfg.Options.Decoder = json.RawMessage(`{"reject_empty": false}`)
	cfg.Options.Assembler = json.RawMessage(`{
  "sheet_name": "Sheet1",
  "bold_header": true,
  "truncate_long_text": true
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "base_dir": "",
  "atomic": true,
  "keep_existing": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
