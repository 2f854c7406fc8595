package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKey 识别唯一索引冲突。
// GORM 的 ErrDuplicatedKey 依赖驱动翻译，这里同时兜底匹配
// MySQL（Duplicate entry）和 SQLite（UNIQUE constraint failed）的错误文案。
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
