package contract

import "errors"

// 运行期最小错误分类。
var (
	// ErrEmptyContent: 行内容为空或仅空白，不得调用 oracle。
	ErrEmptyContent = errors.New("content empty")
	// ErrConfiguration: 启动期配置/输入缺失（参考文件、输入表格等），整体中止。
	ErrConfiguration = errors.New("configuration error")
	// ErrPersistence: 结果落盘失败；内存中的结果保留。
	ErrPersistence = errors.New("persistence failed")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如 token 预算、上游配额）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
