package service

import (
	"context"
	"time"

	"github.com/yuqie6/Sanpai/internal/eventbus"
	"github.com/yuqie6/Sanpai/internal/schema"
)

// 外部子系统的最小接口集合（ISP）

// AbilityProvider 能力子系统：用户已解锁的能力
type AbilityProvider interface {
	OwnedAbilities(ctx context.Context, userID int64) ([]schema.UserAbility, error)
}

// EntitlementProvider 订阅子系统：at 时刻仍有效的权益种类
type EntitlementProvider interface {
	ActiveEntitlements(ctx context.Context, userID int64, at time.Time) ([]string, error)
}

// EventPublisher 进程内事件推送（SSE）
type EventPublisher interface {
	Publish(evt eventbus.Event)
}

// Clock 可注入的时钟，调度与测试使用
type Clock interface {
	Now() time.Time
}

// SystemClock 真实时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type nopPublisher struct{}

func (nopPublisher) Publish(eventbus.Event) {}
