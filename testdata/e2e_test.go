package testdata

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	cfgpkg "jdextract/internal/config"
	"jdextract/internal/pipeline"
	"jdextract/pkg/contract"
)

const reference = "盗窃罪\n诈骗罪\n故意伤害罪\n"

// writeInput 用 excelize 生成输入工作簿：首行表头，正文在 B 列。
func writeInput(t *testing.T, path string, contents []string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"序号", "文书内容"}); err != nil {
		t.Fatalf("header: %v", err)
	}
	for i, c := range contents {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow("Sheet1", cell, &[]any{i + 1, c}); err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save input: %v", err)
	}
}

// readOutput 读取输出工作簿全部行。
func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetList()[0])
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return rows
}

func baseConfig(t *testing.T, dir string) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Input = filepath.Join(dir, "textExcel.xlsx")
	cfg.Output = filepath.Join(dir, "output.xlsx")
	zero := 0.0
	cfg.BackoffFactorSeconds = &zero
	cfg.Logging.Level = "error"
	cfg.Options.PromptBuilder = json.RawMessage(fmt.Sprintf(`{"inline_reference":%q}`, reference))
	cfg.Provider["mock"] = cfgpkg.Provider{Client: "mock"}
	return cfg
}

func runPipeline(t *testing.T, cfg cfgpkg.Config) (*pipeline.Report, error) {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return nil, err
	}
	defer comp.Close()
	return pipeline.Run(context.Background(), comp, set, nil)
}

func header(rows [][]string) string { return strings.Join(rows[0], ",") }

// cellOf 取某行某表头对应的值；短行缺失返回空串。
func cellOf(rows [][]string, row int, name string) string {
	for i, h := range rows[0] {
		if h == name {
			if i < len(rows[row]) {
				return rows[row][i]
			}
			return ""
		}
	}
	return ""
}

func TestE2ESuccess(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	writeInput(t, cfg.Input, []string{"被告人张三盗窃手机一部", "", "被告人李四诈骗"})

	rep, err := runPipeline(t, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if rep.OK != 2 || rep.Failed != 1 {
		t.Fatalf("统计错误: ok=%d failed=%d", rep.OK, rep.Failed)
	}
	rows := readOutput(t, cfg.Output)
	if len(rows) != 4 {
		t.Fatalf("输出应为 1 表头 + 3 行，实得 %d", len(rows))
	}
	if got := header(rows); got != "文书内容,罪名,字数,摘要,error,error_kind" {
		t.Fatalf("表头错误: %s", got)
	}
	if rows[1][0] != "被告人张三盗窃手机一部" || cellOf(rows, 1, "字数") != "11" {
		t.Fatalf("第 1 行错误: %v", rows[1])
	}
	if cellOf(rows, 2, "error_kind") != string(contract.KindEmptyContent) || cellOf(rows, 2, "error") != "content empty" {
		t.Fatalf("空正文行错误: %v", rows[2])
	}
	if cellOf(rows, 3, "罪名") != "MOCK" || cellOf(rows, 3, "error") != "" {
		t.Fatalf("第 3 行错误: %v", rows[3])
	}
}

// 同一输入运行两次，输出一致
func TestE2EIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	writeInput(t, cfg.Input, []string{"甲", "乙", "丙", "丁"})
	if _, err := runPipeline(t, cfg); err != nil {
		t.Fatalf("first: %v", err)
	}
	first := readOutput(t, cfg.Output)
	if _, err := runPipeline(t, cfg); err != nil {
		t.Fatalf("second: %v", err)
	}
	second := readOutput(t, cfg.Output)
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("两次输出不一致\n%v\n%v", first, second)
	}
}

// 围栏包裹的响应与裸 JSON 解析结果相同
func TestE2EFenced(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	writeInput(t, cfg.Input, []string{"被告人王五故意伤害"})
	if _, err := runPipeline(t, cfg); err != nil {
		t.Fatalf("plain: %v", err)
	}
	plain := readOutput(t, cfg.Output)

	cfg.Output = filepath.Join(dir, "fenced.xlsx")
	cfg.Provider["mock"] = cfgpkg.Provider{Client: "mock", Options: json.RawMessage(`{"response_mode":"fenced"}`)}
	if _, err := runPipeline(t, cfg); err != nil {
		t.Fatalf("fenced: %v", err)
	}
	fenced := readOutput(t, cfg.Output)
	if fmt.Sprint(plain) != fmt.Sprint(fenced) {
		t.Fatalf("围栏输出不一致\n%v\n%v", plain, fenced)
	}
}

func TestE2EParseErrorKeepsRaw(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	cfg.Provider["mock"] = cfgpkg.Provider{Client: "mock", Options: json.RawMessage(`{"response_mode":"invalid"}`)}
	writeInput(t, cfg.Input, []string{"甲"})
	rep, err := runPipeline(t, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if rep.Outcomes[0].Attempts != 1 {
		t.Fatalf("解析失败默认不重试，attempts=%d", rep.Outcomes[0].Attempts)
	}
	rows := readOutput(t, cfg.Output)
	if got := header(rows); got != "文书内容,error,error_kind,raw_response" {
		t.Fatalf("表头错误: %s", got)
	}
	if !strings.HasPrefix(cellOf(rows, 1, "error"), "json decode failed") {
		t.Fatalf("错误信息错误: %v", rows[1])
	}
	if cellOf(rows, 1, "raw_response") != "MOCK: not json for row 0" {
		t.Fatalf("raw_response 错误: %v", rows[1])
	}
}

// 传输失败一次后恢复；第二次调用成功
func TestE2ERetryRecovers(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "flaky.log")
	cfg := baseConfig(t, dir)
	cfg.LLM = "flaky"
	cfg.Provider["flaky"] = cfgpkg.Provider{
		Client:  "flaky",
		Options: json.RawMessage(fmt.Sprintf(`{"prefix":"FLAKY","fail_times":2,"positions":[1],"log_path":%q}`, logPath)),
	}
	writeInput(t, cfg.Input, []string{"甲", "乙", "丙"})
	rep, err := runPipeline(t, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if rep.OK != 3 {
		t.Fatalf("全部应成功: %+v", rep.Outcomes)
	}
	rows := readOutput(t, cfg.Output)
	if cellOf(rows, 2, "尝试次数") != "3" || cellOf(rows, 1, "尝试次数") != "1" {
		t.Fatalf("尝试次数错误: %v", rows)
	}
	lines := readLines(t, logPath)
	var pos1 []string
	for _, l := range lines {
		if strings.HasPrefix(l, "1 ") {
			pos1 = append(pos1, l)
		}
	}
	if strings.Join(pos1, ";") != "1 1 transport;1 2 transport;1 3 ok" {
		t.Fatalf("调用序列错误: %v", pos1)
	}
}

// 重试耗尽：该行记为 transport 错误，其他行不受影响
func TestE2ERetriesExhausted(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	cfg.LLM = "flaky"
	cfg.Provider["flaky"] = cfgpkg.Provider{
		Client:  "flaky",
		Options: json.RawMessage(`{"fail_times":10,"positions":[0],"mode":"rate"}`),
	}
	writeInput(t, cfg.Input, []string{"甲", "乙"})
	rep, err := runPipeline(t, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	out := rep.Outcomes[0]
	if out.Err == nil || out.Err.Kind != contract.KindTransport || out.Attempts != 3 {
		t.Fatalf("第 0 行应重试 3 次后失败: %+v", out)
	}
	rows := readOutput(t, cfg.Output)
	if !strings.HasPrefix(cellOf(rows, 1, "error"), "retries exhausted after 3 attempts") {
		t.Fatalf("错误信息错误: %v", rows[1])
	}
	if cellOf(rows, 2, "结果") != "FLAKY" {
		t.Fatalf("第 1 行应成功: %v", rows[2])
	}
}

// 提示词固定部分已超预算：启动期失败，不产生输出
func TestE2EBudgetExceeded(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	cfg.MaxTokens = 1
	writeInput(t, cfg.Input, []string{"甲"})
	_, err := runPipeline(t, cfg)
	if !errors.Is(err, contract.ErrBudgetExceeded) || !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("expect budget error, got %v", err)
	}
	if _, err := os.Stat(cfg.Output); err == nil {
		t.Fatalf("output file should not exist")
	}
}

func TestE2ECarryColumnsAndSidecar(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	on := true
	cfg.Sidecar = &on
	cfg.ContentHeader = "判决书"
	cfg.Options.RowSource = json.RawMessage(`{"column_name":"文书内容","carry_columns":["序号"]}`)
	writeInput(t, cfg.Input, []string{"甲", "乙"})
	if _, err := runPipeline(t, cfg); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	rows := readOutput(t, cfg.Output)
	if got := header(rows); got != "判决书,序号,罪名,字数,摘要" {
		t.Fatalf("表头错误: %s", got)
	}
	if rows[2][1] != "2" {
		t.Fatalf("透传列错误: %v", rows[2])
	}
	lines := readLines(t, cfg.Output+".jsonl")
	if len(lines) != 2 {
		t.Fatalf("sidecar 行数错误: %d", len(lines))
	}
	var first struct {
		Position int64          `json:"position"`
		Content  string         `json:"content"`
		Fields   map[string]any `json:"fields"`
		Attempts int            `json:"attempts"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("sidecar 解析失败: %v", err)
	}
	if first.Position != 0 || first.Content != "甲" || first.Fields["罪名"] != "MOCK" || first.Attempts != 1 {
		t.Fatalf("sidecar 内容错误: %+v", first)
	}
}

// CSV 输入/输出按扩展名推断组件
func TestE2ECSVInference(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	cfg.Components = cfgpkg.Components{}
	cfg.Options.RowSource = nil
	cfg.Options.Assembler = json.RawMessage(`{"bom":false}`)
	cfg.Input = filepath.Join(dir, "in.csv")
	cfg.Output = filepath.Join(dir, "out.csv")
	if err := os.WriteFile(cfg.Input, []byte("序号,文书内容\n1,甲\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := runPipeline(t, cfg); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	lines := readLines(t, cfg.Output)
	if len(lines) != 2 || lines[0] != "文书内容,罪名,字数,摘要" || lines[1] != "甲,MOCK,1,甲" {
		t.Fatalf("csv 输出错误: %v", lines)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return lines
}
