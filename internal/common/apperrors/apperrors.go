package apperrors

import (
	"errors"
	"net/http"
)

// 业务错误分类（哨兵错误）。
// 调用方用 errors.Is 判断类别，用 %w 包装补充上下文。
var (
	// ErrUnauthenticated 未携带有效身份（未登录 / token 无效 / 角色不可识别）
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAccountInactive 身份有效但账号状态不是 active（inactive / suspended）
	ErrAccountInactive = errors.New("account inactive")

	// ErrPermissionDenied 角色或行级归属校验未通过
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound 目标资源不存在（或已被软删除）
	ErrNotFound = errors.New("not found")

	// ErrConflict 唯一性约束冲突（如重复分配同一司机到同一车辆）
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput 入参校验失败
	ErrInvalidInput = errors.New("invalid input")
)

// HTTPStatus 将业务错误映射为 HTTP 状态码；未知错误一律 500。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
