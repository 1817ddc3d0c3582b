package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuqie6/Sanpai/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func parseInt64Param(value string) (int64, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, fmt.Errorf("参数为空")
	}
	return strconv.ParseInt(v, 10, 64)
}

// queryInt 可选整数参数，缺省或非法时返回 def
func queryInt(r *http.Request, key string, def int) int {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// writeServiceError 领域错误到 HTTP 状态码的映射
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		distErr  *service.DistanceExceededError
		dupErr   *service.AlreadyVisitedError
		quotaErr *service.RemoteQuotaError
	)
	switch {
	case errors.As(err, &distErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   err.Error(),
			"code":    "distance_exceeded",
			"details": map[string]any{"distance": distErr.Distance, "allowed": distErr.Allowed},
		})
	case errors.As(err, &dupErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   err.Error(),
			"code":    "already_visited",
			"details": map[string]any{"site_id": dupErr.SiteID},
		})
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   err.Error(),
			"code":    "remote_quota_exceeded",
			"details": map[string]any{"max": quotaErr.Max, "used": quotaErr.Used},
		})
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConfiguration):
		writeError(w, http.StatusInternalServerError, "服务配置错误")
	case errors.Is(err, service.ErrStorage):
		slog.Warn("存储暂不可用", "error", err)
		writeError(w, http.StatusServiceUnavailable, "存储暂不可用，请稍后重试")
	default:
		slog.Error("请求处理失败", "error", err)
		writeError(w, http.StatusInternalServerError, "内部错误")
	}
}
