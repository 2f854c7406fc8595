package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
)

// envelope 对外统一响应包：{success, data} 或 {success, error}
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WriteData 输出成功响应
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// WriteError 输出失败响应。
// 状态码由错误分类映射得出；未归类的错误统一打码为 internal error，
// 不把内部细节透出去。
func WriteError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)

	msg := "internal error"
	if status != http.StatusInternalServerError && err != nil {
		msg = err.Error()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// DecodeJSON 解析请求体；失败归类为入参错误。
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return apperrors.ErrInvalidInput
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return nil
}
