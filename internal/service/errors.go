package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yuqie6/Sanpai/internal/progression"
)

// 领域错误分类，调用方用 errors.Is 判断
var (
	ErrValidation    = errors.New("请求参数无效")
	ErrNotFound      = errors.New("对象不存在")
	ErrPolicy        = errors.New("违反参拜规则")
	ErrConfiguration = progression.ErrConfiguration
	ErrStorage       = errors.New("存储暂不可用")
)

// DistanceExceededError 超出现场参拜半径（米）
type DistanceExceededError struct {
	Distance float64
	Allowed  float64
}

func (e *DistanceExceededError) Error() string {
	return fmt.Sprintf("距离地点 %.0f 米，超出允许范围 %.0f 米", e.Distance, e.Allowed)
}

func (e *DistanceExceededError) Unwrap() error { return ErrPolicy }

// AlreadyVisitedError 当天已现场参拜过该地点
type AlreadyVisitedError struct {
	SiteID int64
}

func (e *AlreadyVisitedError) Error() string {
	return fmt.Sprintf("今天已参拜过地点 %d", e.SiteID)
}

func (e *AlreadyVisitedError) Unwrap() error { return ErrPolicy }

// RemoteQuotaError 当天遥拜次数已用完
type RemoteQuotaError struct {
	Max  int64
	Used int64
}

func (e *RemoteQuotaError) Error() string {
	return fmt.Sprintf("今日遥拜次数已用完（%d/%d）", e.Used, e.Max)
}

func (e *RemoteQuotaError) Unwrap() error { return ErrPolicy }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// isDomainError 已分类的错误原样向上传递
func isDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPolicy) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrStorage)
}

// classifyStorageError 未分类的底层错误统一归为 ErrStorage
func classifyStorageError(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// PostgreSQL 可重试的 SQLSTATE：序列化失败、死锁、锁等待失败
var retryableSQLStates = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
}

// isRetryable 是否为瞬时冲突
func isRetryable(err error) bool {
	if err == nil || isDomainError(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryableSQLStates[pgErr.Code]
		return ok
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

const (
	maxTxAttempts = 4
	retryBackoff  = 20 * time.Millisecond
)

// withRetry 执行事务，瞬时冲突时按次数退避重试，最终错误经过分类
func withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= maxTxAttempts {
			return classifyStorageError(err)
		}
		slog.Warn("事务冲突，准备重试", "op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}
