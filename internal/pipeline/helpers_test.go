package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"jdextract/pkg/contract"
	acsv "jdextract/plugins/assembler/csv"
	dfj "jdextract/plugins/decoder/fieldjson"
	pjd "jdextract/plugins/prompt/judgment"
	scsv "jdextract/plugins/rowsource/csv"
)

// memReader 任意 src 都返回同一份字节。
type memReader struct{ data string }

func (m memReader) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.data)), nil
}

// memWriter 记录写出内容；fail 中的 id 返回对应错误。
type memWriter struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]error
}

func newMemWriter() *memWriter {
	return &memWriter{files: map[string][]byte{}, fail: map[string]error{}}
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail[string(id)]; err != nil {
		return err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.files[string(id)] = b
	return nil
}

func (w *memWriter) get(id string) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[id]
}

// scriptLLM 按正文内容选择应答脚本，并统计调用次数。
type scriptLLM struct {
	mu     sync.Mutex
	calls  map[string]int
	script map[string]func(n int) (contract.Raw, error)
}

func newScriptLLM(script map[string]func(n int) (contract.Raw, error)) *scriptLLM {
	return &scriptLLM{calls: map[string]int{}, script: script}
}

func (s *scriptLLM) Invoke(ctx context.Context, rec contract.Record, p contract.Prompt) (contract.Raw, error) {
	s.mu.Lock()
	s.calls[rec.Content]++
	n := s.calls[rec.Content]
	s.mu.Unlock()
	if f, ok := s.script[rec.Content]; ok {
		return f(n)
	}
	return contract.Raw{Text: `{"ok":true}`}, nil
}

func (s *scriptLLM) count(content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[content]
}

func (s *scriptLLM) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func always(text string) func(int) (contract.Raw, error) {
	return func(int) (contract.Raw, error) { return contract.Raw{Text: text}, nil }
}

func failing(err error) func(int) (contract.Raw, error) {
	return func(int) (contract.Raw, error) { return contract.Raw{}, err }
}

// newComponents 用真实的 csv/judgment/fieldjson 插件组装，LLM 与 IO 为内存实现。
func newComponents(t testing.TB, input string, llm contract.LLMClient) (Components, *memWriter) {
	t.Helper()
	rs, err := scsv.New(&scsv.Options{})
	if err != nil {
		t.Fatalf("rowsource: %v", err)
	}
	pb, err := pjd.New(&pjd.Options{InlineReference: "盗窃罪\n诈骗罪"})
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	dec, err := dfj.New(nil)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	asm, err := acsv.New([]byte(`{"bom":false}`))
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	w := newMemWriter()
	return Components{
		Reader:        memReader{data: input},
		RowSource:     rs,
		PromptBuilder: pb,
		LLM:           llm,
		Decoder:       dec,
		Assembler:     asm,
		Writer:        w,
	}, w
}

func baseSettings() Settings {
	return Settings{
		Input:       "in.csv",
		Output:      "out.csv",
		Concurrency: 5,
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
	}
}

// stubSleep 替换退避等待，记录每次时长。
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	prev := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { sleepFn = prev })
	return &waits
}

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		t.Fatalf("解析输出 CSV 失败: %v", err)
	}
	return rows
}

var errBoom = errors.New("boom")
