package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"

	"mediasniff/internal/logger"
	"mediasniff/internal/service"
	"mediasniff/internal/storage"
	"mediasniff/pkg/model"
)

const maxBodySize = 1 << 20

// Messages UI 消息处理
type Messages interface {
	GetVideoURLs(tab model.TabID) service.URLsResult
	ClearURLs() service.Result
	DownloadVideo(ctx context.Context, req model.DownloadRequest) service.DownloadResult
	OpenVideoInNewTab(ctx context.Context, url string) service.TabResult
	SendToAria2(ctx context.Context, req model.Aria2Request) service.Aria2Result
	GetCurlForItem(ref model.ItemRef) service.CommandResult
}

// SettingsStore 外部下载代理配置读写
type SettingsStore interface {
	Aria2() (model.Aria2Settings, error)
	SetAria2(s model.Aria2Settings) error
}

// HistoryReader 投递历史查询
type HistoryReader interface {
	Recent(limit int) ([]storage.DeliveryRecord, error)
}

// Counter 运行状态计数来源
type Counter interface {
	Len() int
}

// Config 服务器依赖
type Config struct {
	Messages  Messages
	Settings  SettingsStore
	History   HistoryReader
	Observe   http.Handler // 观察者 WebSocket 接入
	RateLimit int          // /api/message 每分钟每 IP 请求数，0 表示不限
	Status    map[string]Counter
	Logger    logger.Logger
}

// Server HTTP API
type Server struct {
	cfg Config
	log logger.Logger
}

// New 创建 API 服务器
func New(cfg Config) *Server {
	return &Server{cfg: cfg, log: logger.Component(cfg.Logger, "api")}
}

// Router 构造路由
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.RateLimit > 0 {
				r.Use(httprate.Limit(s.cfg.RateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
						writeJSON(w, http.StatusTooManyRequests, service.Result{Success: false, Error: "rate limit exceeded"})
					}),
				))
			}
			r.With(requireJSON).Post("/message", s.handleMessage)
		})
		if s.cfg.Observe != nil {
			r.Get("/observe", s.cfg.Observe.ServeHTTP)
		}
		r.Get("/settings", s.handleGetSettings)
		r.With(requireJSON).Put("/settings", s.handlePutSettings)
		r.Get("/deliveries", s.handleDeliveries)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Run 监听地址直到 ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上提供服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("API 服务已启动", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	s.log.Info("API 服务已停止")
	return err
}

// requireJSON 拒绝非 application/json 的写请求，跨域简单请求因此无法触发操作
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, service.Result{Success: false, Error: "content type must be application/json"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, service.Result{Success: false, Error: "invalid json"})
		return
	}
	action := gjson.GetBytes(body, "action").String()
	resp, err := s.dispatch(r.Context(), action, body)
	if err != nil {
		s.log.Debug("拒绝消息", "action", action, "error", err)
		writeJSON(w, http.StatusBadRequest, service.Result{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var errUnknownAction = errors.New("unknown action")

// dispatch 按 action 分发到对应的消息处理
func (s *Server) dispatch(ctx context.Context, action string, body []byte) (any, error) {
	m := s.cfg.Messages
	switch action {
	case model.MsgGetVideoURLs:
		return m.GetVideoURLs(model.TabID(gjson.GetBytes(body, "tabId").String())), nil
	case model.MsgClearURLs:
		return m.ClearURLs(), nil
	case model.MsgDownloadVideo:
		var req model.DownloadRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return m.DownloadVideo(ctx, req), nil
	case model.MsgOpenVideoInNewTab:
		return m.OpenVideoInNewTab(ctx, gjson.GetBytes(body, "url").String()), nil
	case model.MsgSendToAria2:
		var req model.Aria2Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return m.SendToAria2(ctx, req), nil
	case model.MsgGetCurlForItem:
		var ref model.ItemRef
		if err := json.Unmarshal(body, &ref); err != nil {
			return nil, err
		}
		return m.GetCurlForItem(ref), nil
	default:
		return nil, errUnknownAction
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Settings == nil {
		writeJSON(w, http.StatusOK, model.Aria2Settings{})
		return
	}
	cur, err := s.cfg.Settings.Aria2()
	if err != nil {
		s.log.Err(err, "读取设置失败")
		writeJSON(w, http.StatusInternalServerError, service.Result{Success: false, Error: "settings unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Settings == nil {
		writeJSON(w, http.StatusServiceUnavailable, service.Result{Success: false, Error: "settings unavailable"})
		return
	}
	var next model.Aria2Settings
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&next); err != nil {
		writeJSON(w, http.StatusBadRequest, service.Result{Success: false, Error: "invalid json"})
		return
	}
	if next.URL != "" {
		u, err := url.Parse(next.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			writeJSON(w, http.StatusBadRequest, service.Result{Success: false, Error: "aria2Url must be an http(s) url"})
			return
		}
	}
	if err := s.cfg.Settings.SetAria2(next); err != nil {
		s.log.Err(err, "保存设置失败")
		writeJSON(w, http.StatusInternalServerError, service.Result{Success: false, Error: "settings unavailable"})
		return
	}
	s.log.Info("外部下载代理配置已更新", "configured", next.URL != "")
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]int, len(s.cfg.Status))
	for name, c := range s.cfg.Status {
		out[name] = c.Len()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeJSON(w, http.StatusOK, []storage.DeliveryRecord{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.cfg.History.Recent(limit)
	if err != nil {
		s.log.Err(err, "查询投递历史失败")
		writeJSON(w, http.StatusInternalServerError, service.Result{Success: false, Error: "history unavailable"})
		return
	}
	if rows == nil {
		rows = []storage.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
