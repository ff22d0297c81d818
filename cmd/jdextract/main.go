package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	cfgpkg "jdextract/internal/config"
	"jdextract/internal/diag"
	"jdextract/internal/pipeline"
	"jdextract/pkg/contract"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行失败（含写出失败）；3 配置/启动失败（含输入或参考文本缺失）。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

// CLI：位置参数为输入（路径、"-" 或 s3://bucket/key）。
// 旗标：--config, --llm, --concurrency, --max-attempts, --max-tokens, --output, --retry-parse-errors, --init-config, --status
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := genCorrID()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	// 配置确定前日志写 stderr；合并配置后按最终 logging 重建文件 sink
	logger := diag.NewLoggerTo(corrID, "info", nil)
	defer func() { _ = logger.Sync() }()

	var (
		flagConfig      string
		flagLLM         string
		flagConcurrency int
		flagMaxAttempts int
		flagMaxTokens   int
		flagOutput      string
		flagRetryParse  bool
		flagInitDir     string
		flagStatus      bool
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	flag.StringVar(&flagLLM, "llm", "", "provider 名称（覆盖配置）")
	flag.IntVar(&flagConcurrency, "concurrency", 0, "并发度（覆盖配置）")
	flag.IntVar(&flagMaxAttempts, "max-attempts", 0, "每行 LLM 调用总次数上限（覆盖配置）")
	flag.IntVar(&flagMaxTokens, "max-tokens", 0, "单行 token 预算（覆盖配置）")
	flag.StringVar(&flagOutput, "output", "", "输出表格路径或 s3://bucket/key（覆盖配置）")
	flag.BoolVar(&flagRetryParse, "retry-parse-errors", false, "解析失败也进入退避重试（覆盖配置）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认 config.json 和 .env 模板（已存在则报错，不覆盖）；不带值时默认当前目录")
	flag.BoolVar(&flagStatus, "status", true, "终端进度提示（stderr）。TTY 动态刷新；非 TTY 按 10% 打点")
	normalizeInitArg()
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return exitConfig
	}
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	// --init-config: 生成模板并退出
	if initDir := strings.TrimSpace(flagInitDir); initDir != "" {
		if err := initConfig(initDir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("cli", string(diag.Classify(err)), "init config", &start)
			return exitConfig
		}
		return exitOK
	}

	cfg, err := loadConfig(flagConfig)
	if err != nil {
		fprintf(os.Stderr, "配置解析失败: %v\n", err)
		logger.Error("cli", string(diag.CodeConfig), "first error", &start)
		return exitConfig
	}

	// CLI 覆盖
	var overCLI cfgpkg.Config
	overCLI.LLM = flagLLM
	overCLI.Output = flagOutput
	if flagConcurrency > 0 {
		overCLI.Concurrency = flagConcurrency
	}
	if flagMaxAttempts > 0 {
		overCLI.MaxAttempts = flagMaxAttempts
	}
	if flagMaxTokens > 0 {
		overCLI.MaxTokens = flagMaxTokens
	}
	if explicit["retry-parse-errors"] {
		v := flagRetryParse
		overCLI.RetryParseErrors = &v
	}
	if args := flag.Args(); len(args) > 0 {
		if len(args) > 1 {
			fprintf(os.Stderr, "只接受一个输入，实得 %d 个\n", len(args))
			return exitConfig
		}
		overCLI.Input = args[0]
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		_ = dumpConfig(cfg)
		logger.Error("cli", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}

	// 使用最终 logging 重建 logger
	_ = logger.Sync()
	logger = diag.NewLoggerWith(corrID, diag.LogOptions{
		Level:    cfg.Logging.Level,
		Dir:      cfg.Logging.Dir,
		MaxBytes: cfg.Logging.MaxBytes,
	})

	if err := preflightCheckOutputDir(cfg); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("cli", string(diag.CodeIO), "first error", &start)
		return exitConfig
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v (corr_id=%s)\n", err, logger.CorrID())
		logger.Error("cli", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}
	defer func() { _ = comp.Close() }()
	if p := strings.TrimSpace(cfg.Metrics.Textfile); p != "" {
		defer func() {
			if err := diag.WriteTextfile(p); err != nil {
				fprintf(os.Stderr, "指标导出失败: %v\n", err)
			}
		}()
	}

	term := diag.NewTerminal(os.Stderr, flagStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(cfg.Concurrency, cfg.LLM)

	logger.DebugStart("config", "effective", "", "", effectiveKV(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := logger.Start("pipeline", "run")
	rep, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v (corr_id=%s)\n", err, logger.CorrID())
		}
		term.RunFinish(false, outputTarget(comp.Writer, set.Output), time.Since(start))
		// 读取输入失败（不存在/不可读）属于启动期配置错误
		if errors.Is(err, contract.ErrConfiguration) {
			return exitConfig
		}
		return exitRun
	}
	var rows int64
	if rep != nil {
		rows = int64(len(rep.Outcomes))
	}
	t.Finish("run", rows)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, outputTarget(comp.Writer, set.Output), time.Since(start))
	return exitOK
}

// outputTarget 返回终端展示用的输出位置；本地 Writer 映射 base_dir 后的实际路径。
func outputTarget(w contract.Writer, out string) string {
	t, ok := w.(interface {
		Target(contract.ArtifactID) (string, error)
	})
	if !ok {
		return out
	}
	if p, err := t.Target(contract.ArtifactID(out)); err == nil {
		return p
	}
	return out
}

// loadConfig 依次合并：默认值 < JSON（文件或 JDX_CONFIG_JSON）< ENV。
func loadConfig(path string) (cfgpkg.Config, error) {
	var raw []byte
	if s := os.Getenv("JDX_CONFIG_JSON"); s != "" {
		raw = []byte(s)
	}
	if path == "" {
		path = os.Getenv("JDX_CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" || len(raw) > 0 {
		base, err := cfgpkg.LoadJSON(path, raw)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	over, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	return cfgpkg.Merge(cfg, over), nil
}

// effectiveKV: 运行配置摘要（不含密钥）。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	names := cfgpkg.Resolve(cfg)
	kv := map[string]string{
		"input":          cfg.Input,
		"output":         cfg.Output,
		"concurrency":    strconv.Itoa(cfg.Concurrency),
		"max_attempts":   strconv.Itoa(cfg.MaxAttempts),
		"max_tokens":     strconv.Itoa(cfg.MaxTokens),
		"llm":            cfg.LLM,
		"reader":         names.Reader,
		"row_source":     names.RowSource,
		"prompt_builder": names.PromptBuilder,
		"decoder":        names.Decoder,
		"assembler":      names.Assembler,
		"writer":         names.Writer,
	}
	if cfg.BackoffFactorSeconds != nil {
		kv["backoff_factor_seconds"] = strconv.FormatFloat(*cfg.BackoffFactorSeconds, 'f', -1, 64)
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		var s struct {
			BaseURL  string `json:"base_url"`
			Model    string `json:"model"`
			Endpoint string `json:"endpoint"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
		if s.Endpoint != "" {
			kv["endpoint"] = s.Endpoint
		}
	}
	return kv
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(redact(c), "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

// redact 去掉 provider options 中的明文 api_key。
func redact(c cfgpkg.Config) cfgpkg.Config {
	if len(c.Provider) == 0 {
		return c
	}
	prov := make(map[string]cfgpkg.Provider, len(c.Provider))
	for k, p := range c.Provider {
		var m map[string]any
		if json.Unmarshal(p.Options, &m) == nil {
			if v, ok := m["api_key"].(string); ok && v != "" {
				m["api_key"] = "***"
				if b, err := json.Marshal(m); err == nil {
					p.Options = b
				}
			}
		}
		prov[k] = p
	}
	c.Provider = prov
	return c
}

func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
		return err
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

func genCorrID() string {
	return uuid.NewString()
}

// loadDotEnv 读取简单的 .env 文件并注入进程环境。
// 跳过空行与 # 注释；支持可选前缀 "export "；仅按首个 '=' 分割；
// 成对单/双引号会被去除，双引号内处理 \n \t \r \" \\；不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := unquote(strings.TrimSpace(line[eq+1:]))
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	q := val[0]
	if (q != '\'' && q != '"') || val[len(val)-1] != q {
		return val
	}
	val = val[1 : len(val)-1]
	if q == '"' {
		val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
	}
	return val
}

// normalizeInitArg: 允许 --init-config 不带值（等价于 --init-config .）。
//
//	--init-config
//	--init-config=out
//	--init-config out
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
			}
		}
	}
	os.Args = out
}

// writeDotEnv 生成 .env 模板（已存在则跳过）。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# jdextract .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（二选一）\n")
	b.WriteString("JDX_CONFIG_FILE=\n")
	b.WriteString("JDX_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{
		"INPUT", "OUTPUT", "CONTENT_HEADER", "CONCURRENCY", "MAX_ATTEMPTS", "BACKOFF_FACTOR_SECONDS",
		"RETRY_PARSE_ERRORS", "MAX_TOKENS", "BYTES_PER_TOKEN", "SIDECAR", "LOG_LEVEL", "LOG_DIR",
		"METRICS_TEXTFILE", "LLM",
	} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}

	b.WriteString("\n# 组件选择（留空按输入/输出扩展名推断）\n")
	for _, k := range []string{"READER", "ROW_SOURCE", "PROMPT_BUILDER", "DECODER", "ASSEMBLER", "WRITER"} {
		b.WriteString(cfgpkg.EnvPrefix + "COMPONENTS_" + k + "=\n")
	}

	for _, p := range []string{"gemini", "openai"} {
		b.WriteString("\n# Provider 覆盖（" + p + "）\n")
		for _, k := range []string{"CLIENT", "LIMITS_RPM", "LIMITS_TPM", "LIMITS_MAX_TOKENS_PER_REQ", "OPTIONS_JSON"} {
			b.WriteString(cfgpkg.EnvPrefix + "PROVIDER__" + p + "__" + k + "=\n")
		}
	}

	// 由各客户端直接读取，不带 JDX_ 前缀
	b.WriteString("\n# 供应商 API Key\n")
	b.WriteString("GOOGLE_API_KEY=\n")
	b.WriteString("OPENAI_API_KEY=\n")
	b.WriteString("\n# S3（reader/writer s3）\n")
	b.WriteString("AWS_ACCESS_KEY_ID=\n")
	b.WriteString("AWS_SECRET_ACCESS_KEY=\n")
	b.WriteString("AWS_REGION=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightCheckOutputDir: 本地 fs writer 启动前检查输出目录可写性。
// 目录存在：尝试创建并删除临时文件；不存在：检查最近的已存在祖先目录可写。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	if cfgpkg.Resolve(cfg).Writer != "fs" {
		return nil
	}
	var wopts struct {
		BaseDir string `json:"base_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	target := strings.TrimSpace(cfg.Output)
	if base := strings.TrimSpace(wopts.BaseDir); base != "" && !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	dir := filepath.Dir(target)
	for {
		st, err := os.Stat(dir)
		if err == nil {
			if !st.IsDir() {
				return fmt.Errorf("路径存在但不是目录: %s", dir)
			}
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		dir = parent
	}
	f, err := os.CreateTemp(dir, ".wcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}
