package catalog

import (
	"context"
	"time"

	"mediasniff/internal/logger"
)

const (
	// DefaultSweepInterval 默认清理周期
	DefaultSweepInterval = 5 * time.Minute
	// DefaultRetention 默认保留时长
	DefaultRetention = time.Hour
)

// Sweeper 定期淘汰过期记录，与请求量无关，目录为空时同样运行
type Sweeper struct {
	store     *Store
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	log       logger.Logger
}

// NewSweeper 创建清理器，非正数参数使用默认值
func NewSweeper(store *Store, interval, retention time.Duration, l logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &Sweeper{store: store, interval: interval, retention: retention, now: time.Now, log: l}
}

// Run 阻塞运行直到 ctx 结束
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.Info("过期清理已启动", "interval", w.interval.String(), "retention", w.retention.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep 执行一次清理
func (w *Sweeper) Sweep() int {
	removed := w.store.PurgeOlderThan(w.retention, w.now())
	if removed > 0 {
		w.log.Info("清理过期媒体记录", "removed", removed, "remaining", w.store.Len())
	}
	return removed
}
