package contract

// UpstreamError 承载 oracle 上游（HTTP/gRPC）错误的最小诊断信息。
// pipeline 用它在日志中附带状态码与消息片段。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
