package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"mediasniff/internal/logger"
	"mediasniff/pkg/model"
)

// 投递结果，用于统计
const (
	OutcomeDirect   = "direct"
	OutcomeFallback = "fallback"
	OutcomeDropped  = "dropped"
)

// DefaultFallbackOrigins 定向投递失败后允许兜底广播的页面来源
var DefaultFallbackOrigins = []string{"classroom.google.com", "drive.google.com"}

const (
	deliverTimeout = 2 * time.Second
	maxQueued      = 1024
)

// Observer UI 观察者
type Observer interface {
	ID() string
	Tab() model.TabID
	PageURL() string
	Deliver(ctx context.Context, ev model.ObserverEvent) error
}

// Hub 观察者列表，投递尽力而为，失败不向调用方暴露
type Hub struct {
	mu        sync.RWMutex
	observers map[string]Observer
	origins   []string
	onResult  func(outcome string)
	log       logger.Logger

	// 待投递事件按发布顺序排队，由单个 drain 协程依次投递
	qmu      sync.Mutex
	queue    []job
	draining bool
}

type job struct {
	tab       model.TabID
	ev        model.ObserverEvent
	broadcast bool
}

// NewHub 创建观察者中心，origins 为空时使用默认兜底来源
func NewHub(origins []string, l logger.Logger) *Hub {
	if len(origins) == 0 {
		origins = DefaultFallbackOrigins
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &Hub{observers: make(map[string]Observer), origins: origins, log: l}
}

// OnResult 设置投递结果回调
func (h *Hub) OnResult(fn func(outcome string)) { h.onResult = fn }

// Register 注册观察者，返回注销函数
func (h *Hub) Register(o Observer) func() {
	h.mu.Lock()
	h.observers[o.ID()] = o
	h.mu.Unlock()
	h.log.Debug("观察者已注册", "observer", o.ID(), "tab", string(o.Tab()))
	return func() {
		h.mu.Lock()
		delete(h.observers, o.ID())
		h.mu.Unlock()
		h.log.Debug("观察者已注销", "observer", o.ID())
	}
}

// Len 返回当前观察者数量
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Publish 异步通知目录变更，按调用顺序投递，调用方不依赖投递结果
func (h *Hub) Publish(tab model.TabID, rec *model.MediaRecord) {
	h.enqueue(job{tab: tab, ev: model.ObserverEvent{Action: model.ActionVideoURLDetected, Data: rec}})
}

// Broadcast 异步向全部观察者广播
func (h *Hub) Broadcast(ev model.ObserverEvent) {
	h.enqueue(job{ev: ev, broadcast: true})
}

// enqueue 追加到队列尾部，队列已满时丢弃最早的事件
func (h *Hub) enqueue(j job) {
	h.qmu.Lock()
	dropped := false
	if len(h.queue) >= maxQueued {
		h.queue = h.queue[1:]
		dropped = true
	}
	h.queue = append(h.queue, j)
	start := !h.draining
	h.draining = true
	h.qmu.Unlock()

	if dropped {
		h.log.Warn("通知队列已满，丢弃最早的事件")
		h.report(OutcomeDropped)
	}
	if start {
		go h.drain()
	}
}

// drain 依次投递队列中的事件，队列清空后退出
func (h *Hub) drain() {
	for {
		h.qmu.Lock()
		if len(h.queue) == 0 {
			h.draining = false
			h.qmu.Unlock()
			return
		}
		j := h.queue[0]
		h.queue[0] = job{}
		h.queue = h.queue[1:]
		h.qmu.Unlock()

		if j.broadcast {
			for _, o := range h.snapshot() {
				_ = h.deliver(context.Background(), o, j.ev)
			}
			continue
		}
		h.publish(context.Background(), j.tab, j.ev)
	}
}

// publish 先向所属页面的观察者投递；失败或无人接收时向来源白名单内的观察者兜底广播
func (h *Hub) publish(ctx context.Context, tab model.TabID, ev model.ObserverEvent) string {
	all := h.snapshot()
	attempted := make(map[string]struct{})
	delivered, failed := 0, 0
	for _, o := range all {
		if o.Tab() != tab {
			continue
		}
		attempted[o.ID()] = struct{}{}
		if err := h.deliver(ctx, o, ev); err != nil {
			failed++
			h.log.Debug("定向投递失败", "observer", o.ID(), "error", err)
			continue
		}
		delivered++
	}
	if delivered > 0 && failed == 0 {
		h.report(OutcomeDirect)
		return OutcomeDirect
	}

	fallback := 0
	for _, o := range all {
		if _, ok := attempted[o.ID()]; ok {
			continue
		}
		if !h.allowed(o.PageURL()) {
			continue
		}
		if err := h.deliver(ctx, o, ev); err != nil {
			h.log.Debug("兜底广播失败", "observer", o.ID(), "error", err)
			continue
		}
		fallback++
	}
	outcome := OutcomeDropped
	if fallback > 0 {
		outcome = OutcomeFallback
	} else if delivered > 0 {
		outcome = OutcomeDirect
	}
	h.report(outcome)
	return outcome
}

func (h *Hub) deliver(ctx context.Context, o Observer, ev model.ObserverEvent) error {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	return o.Deliver(ctx, ev)
}

// allowed 判断页面地址是否在兜底来源白名单内
func (h *Hub) allowed(pageURL string) bool {
	if pageURL == "" {
		return false
	}
	for _, origin := range h.origins {
		if strings.Contains(pageURL, origin) {
			return true
		}
	}
	return false
}

func (h *Hub) snapshot() []Observer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Observer, 0, len(h.observers))
	for _, o := range h.observers {
		out = append(out, o)
	}
	return out
}

func (h *Hub) report(outcome string) {
	if h.onResult != nil {
		h.onResult(outcome)
	}
}
