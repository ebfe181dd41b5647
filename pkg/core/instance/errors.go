package instance

import "errors"

// 核心错误分类（对外导出）
// 约定：所有错误通过errors.Is判断；变更路径出错必须完整回滚，存储不留部分更新
var (
	// ErrNotFound 按主键找不到TaskInstance/DagRun
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest 请求参数互斥冲突（如run_id与include_past组合）
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTaskNotFound Task ID在DAG定义中不存在
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotMappedTask Task存在但未声明动态展开
	ErrNotMappedTask = errors.New("task is not mapped")
	// ErrTooManyAffectedRows clear影响行数超出上限，操作中止且零变更
	ErrTooManyAffectedRows = errors.New("too many affected rows")
)
