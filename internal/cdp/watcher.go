package cdp

import (
	"context"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"

	"mediasniff/internal/classify"
	"mediasniff/internal/headers"
	"mediasniff/internal/logger"
	"mediasniff/pkg/model"
)

// DefaultPollInterval 目标列表轮询间隔
const DefaultPollInterval = 2 * time.Second

// Sink 网络观测的接收方
type Sink interface {
	ObserveURL(rawURL string, tab model.TabID)
	ObserveHeaders(rawURL string, hs []model.HeaderEntry, method string)
}

// Watcher 为每个用户页面目标保持一条 CDP 连接并监听网络请求
type Watcher struct {
	devtoolsURL string
	sink        Sink
	interval    time.Duration
	log         logger.Logger

	watchersMu sync.Mutex
	watchers   map[model.TabID]*targetWatcher
	wg         sync.WaitGroup
}

type targetWatcher struct {
	id     model.TabID
	conn   *rpcc.Conn
	cancel context.CancelFunc
}

// NewWatcher 创建网络观测器
func NewWatcher(devtoolsURL string, sink Sink, l logger.Logger) *Watcher {
	return &Watcher{
		devtoolsURL: devtoolsURL,
		sink:        sink,
		interval:    DefaultPollInterval,
		log:         logger.Component(l, "cdp"),
		watchers:    make(map[model.TabID]*targetWatcher),
	}
}

// Run 轮询目标列表直到 ctx 结束，退出前关闭全部连接
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("开始监听浏览器网络请求", "devtools", w.devtoolsURL)
	w.checkTargets(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.stopAllWatchers()
			w.wg.Wait()
			w.log.Info("网络监听已停止")
			return nil
		case <-ticker.C:
			w.checkTargets(ctx)
		}
	}
}

// Len 当前监听的目标数
func (w *Watcher) Len() int {
	w.watchersMu.Lock()
	defer w.watchersMu.Unlock()
	return len(w.watchers)
}

func (w *Watcher) checkTargets(ctx context.Context) {
	lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	targets, err := devtool.New(w.devtoolsURL).List(lctx)
	if err != nil {
		w.log.Debug("获取目标列表失败", "error", err)
		return
	}
	w.refreshWatchers(ctx, targets)
}

// refreshWatchers 关闭已消失目标的连接，为新出现的用户页面建立连接
func (w *Watcher) refreshWatchers(ctx context.Context, targets []*devtool.Target) {
	ids := userPages(targets)

	w.watchersMu.Lock()
	defer w.watchersMu.Unlock()
	for id, tw := range w.watchers {
		if _, ok := ids[id]; !ok {
			tw.close()
			delete(w.watchers, id)
		}
	}
	if ctx.Err() != nil {
		return
	}
	for id, t := range ids {
		if _, ok := w.watchers[id]; ok {
			continue
		}
		tw, err := w.startWatcher(ctx, id, t.WebSocketDebuggerURL)
		if err != nil {
			w.log.Debug("连接目标失败", "target", string(id), "error", err)
			continue
		}
		w.watchers[id] = tw
		w.log.Debug("开始监听目标", "target", string(id), "url", t.URL)
	}
}

func (w *Watcher) startWatcher(ctx context.Context, id model.TabID, wsURL string) (*targetWatcher, error) {
	wctx, cancel := context.WithCancel(ctx)
	conn, err := rpcc.DialContext(wctx, wsURL)
	if err != nil {
		cancel()
		return nil, err
	}
	client := cdp.NewClient(conn)

	sent, err := client.Network.RequestWillBeSent(wctx)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, err
	}
	extra, err := client.Network.RequestWillBeSentExtraInfo(wctx)
	if err != nil {
		_ = sent.Close()
		cancel()
		_ = conn.Close()
		return nil, err
	}
	if err := client.Network.Enable(wctx, nil); err != nil {
		_ = sent.Close()
		_ = extra.Close()
		cancel()
		_ = conn.Close()
		return nil, err
	}

	tw := &targetWatcher{id: id, conn: conn, cancel: cancel}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer sent.Close()
		defer extra.Close()
		w.consume(wctx, id, sent, extra)
		w.removeWatcher(id, tw)
	}()
	return tw, nil
}

// consume 读取两条事件流直到连接关闭
func (w *Watcher) consume(ctx context.Context, id model.TabID, sent network.RequestWillBeSentClient, extra network.RequestWillBeSentExtraInfoClient) {
	tr := newRequestTracker(defaultTrackerCap)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sent.Ready():
			ev, err := sent.Recv()
			if err != nil {
				return
			}
			w.onRequest(tr, id, ev)
		case <-extra.Ready():
			ev, err := extra.Recv()
			if err != nil {
				return
			}
			w.onExtraInfo(tr, ev)
		}
	}
}

func (w *Watcher) onRequest(tr *requestTracker, id model.TabID, ev *network.RequestWillBeSentReply) {
	if ev == nil {
		return
	}
	u := ev.Request.URL
	media := classify.IsMediaURL(u)
	parked, ok := tr.request(string(ev.RequestID), u, ev.Request.Method, media)
	if !media {
		return
	}
	w.sink.ObserveURL(u, id)
	w.sink.ObserveHeaders(u, headers.Parse(ev.Request.Headers), ev.Request.Method)
	if ok {
		w.sink.ObserveHeaders(u, parked, ev.Request.Method)
	}
}

func (w *Watcher) onExtraInfo(tr *requestTracker, ev *network.RequestWillBeSentExtraInfoReply) {
	if ev == nil {
		return
	}
	hs := headers.Parse(ev.Headers)
	if req, ok := tr.extra(string(ev.RequestID), hs); ok {
		w.sink.ObserveHeaders(req.url, hs, req.method)
	}
}

func (w *Watcher) removeWatcher(id model.TabID, tw *targetWatcher) {
	w.watchersMu.Lock()
	defer w.watchersMu.Unlock()
	if cur, ok := w.watchers[id]; ok && cur == tw {
		cur.close()
		delete(w.watchers, id)
	}
}

func (w *Watcher) stopAllWatchers() {
	w.watchersMu.Lock()
	defer w.watchersMu.Unlock()
	for id, tw := range w.watchers {
		tw.close()
		delete(w.watchers, id)
	}
}

func (tw *targetWatcher) close() {
	tw.cancel()
	if tw.conn != nil {
		_ = tw.conn.Close()
	}
}
