// Package eventbus 进程内广播，供 SSE 推送使用
package eventbus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// 事件类型
const (
	TypeVisitRecorded    = "visit.recorded"
	TypeLevelUp          = "user.level_up"
	TypeHarvestCompleted = "harvest.completed"
)

// Event 推送给订阅者的事件；UserID 为 0 表示全局事件（如周期收割）
type Event struct {
	Type      string         `json:"type"`
	UserID    int64          `json:"user_id,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Filter 订阅过滤条件，零值表示接收全部事件
type Filter struct {
	Types  []string
	UserID int64 // 只接收该用户的事件与全局事件
}

// ParseTypes 解析逗号分隔的事件类型列表
func ParseTypes(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (f Filter) match(evt Event) bool {
	if f.UserID != 0 && evt.UserID != 0 && evt.UserID != f.UserID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == evt.Type {
			return true
		}
	}
	return false
}

type subscription struct {
	ch     chan Event
	filter Filter
}

// Hub 非阻塞的多订阅者广播
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// Publish 投递给所有匹配的订阅者；缓冲已满的订阅者丢弃该事件
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if !sub.filter.match(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// 慢消费者不能拖住参拜事务的提交路径
			h.dropped.Add(1)
		}
	}
}

// Subscribe 按 filter 订阅事件，ctx 结束时自动退订并关闭通道
func (h *Hub) Subscribe(ctx context.Context, buffer int, filter Filter) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{ch: make(chan Event, buffer), filter: filter}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}

// Subscribers 当前订阅数
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped 因订阅者缓冲已满而丢弃的事件数
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}
