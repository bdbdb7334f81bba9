package store

import "fmt"

// ==================== StoreGateway 错误消息 ====================

// ErrSchemaMismatch 声明列与物理列不一致
func ErrSchemaMismatch(table, reason string) error {
	return fmt.Errorf("schema mismatch on table %s: %s", table, reason)
}

// ErrTableMissing 既无声明也无物理表结构
func ErrTableMissing(table string) error {
	return fmt.Errorf("table %s does not exist and no column definitions were supplied", table)
}

// ErrUpdateMatchedZeroRows UPDATE 的 WHERE 子句未命中任何行
func ErrUpdateMatchedZeroRows(table string) error {
	return fmt.Errorf("update on %s matched zero rows", table)
}

// ErrUnknownCaptureMode 未知的变更捕获策略
func ErrUnknownCaptureMode(mode string) error {
	return fmt.Errorf("unknown change capture mode: %s", mode)
}

// ErrEngine 包装底层 SQL 错误
func ErrEngine(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
