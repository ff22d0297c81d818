package contract

// Position: 记录在输入表中的序号（0..n-1），决定输出顺序。
type Position int64

// Column: 随记录透传的原始单元格（表头 + 值）。
type Column struct {
	Name  string
	Value string
}

// Record: 一行文书。
// 约束：
// - Position 在同一输入内唯一且自 0 递增；
// - Content 原样保留（可为空），空白判定由 PromptBuilder 负责；
// - 创建后只读。
type Record struct {
	Position Position
	Content  string
	Columns  []Column // 可为 nil
}

// ErrorKind: 行级错误分类。
type ErrorKind string

const (
	KindEmptyContent ErrorKind = "empty_content"
	KindTransport    ErrorKind = "transport"
	KindParse        ErrorKind = "parse"
	KindBudget       ErrorKind = "budget"
	KindUnexpected   ErrorKind = "unexpected"
)

// ErrorRecord: 行级失败结果；Raw 仅在解析失败时保留原始响应。
type ErrorRecord struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Raw     string    `json:"raw,omitempty"`
}

// Outcome: 每个 Position 恰好一个终态结果。
// Fields 与 Err 二者有且仅有一个非空。
type Outcome struct {
	Position Position
	Fields   *Fields
	Err      *ErrorRecord
	// Attempts: 实际发起的 oracle 调用次数（空内容为 0）。
	Attempts int
}

// Valid 报告 Outcome 是否满足“恰好一种形状”。
func (o Outcome) Valid() bool {
	return (o.Fields != nil) != (o.Err != nil)
}

// Failed 构造错误结果。
func Failed(pos Position, kind ErrorKind, msg, raw string, attempts int) Outcome {
	return Outcome{Position: pos, Err: &ErrorRecord{Kind: kind, Message: msg, Raw: raw}, Attempts: attempts}
}

// Sheet: 结果表（已展平）。Rows[i][j] 为 nil 表示缺失。
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}
