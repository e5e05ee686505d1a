package cdp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/browser"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/rpcc"

	"mediasniff/internal/logger"
	"mediasniff/pkg/model"
)

const (
	downloadBeginTimeout = 15 * time.Second
	downloadWatchLimit   = 6 * time.Hour
)

// ErrDownloadNotStarted 浏览器未在限定时间内开始下载
var ErrDownloadNotStarted = errors.New("download did not start")

// Host 通过 DevTools 提供原生下载、新标签页与当前页面标题
type Host struct {
	devtoolsURL string
	downloadDir string
	log         logger.Logger
}

// NewHost 创建浏览器宿主
func NewHost(devtoolsURL, downloadDir string, l logger.Logger) *Host {
	return &Host{devtoolsURL: devtoolsURL, downloadDir: downloadDir, log: logger.Component(l, "host")}
}

// OpenTab 在新标签页打开地址，返回目标 ID
func (h *Host) OpenTab(ctx context.Context, url string) (model.TabID, error) {
	t, err := devtool.New(h.devtoolsURL).CreateURL(ctx, url)
	if err != nil {
		return "", fmt.Errorf("open tab: %w", err)
	}
	return model.TabID(t.ID), nil
}

// ActiveTitle 返回最近用户页面的标题，不可用时返回空串
func (h *Host) ActiveTitle(ctx context.Context) string {
	lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	targets, err := devtool.New(h.devtoolsURL).List(lctx)
	if err != nil {
		h.log.Debug("获取目标列表失败", "error", err)
		return ""
	}
	if t := selectActivePage(targets); t != nil {
		return t.Title
	}
	return ""
}

// Download 让浏览器下载地址到下载目录，返回下载 GUID；完成后文件重命名为 filename
func (h *Host) Download(ctx context.Context, url, filename string) (string, error) {
	if err := os.MkdirAll(h.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare download dir: %w", err)
	}
	v, err := devtool.New(h.devtoolsURL).Version(ctx)
	if err != nil {
		return "", fmt.Errorf("devtools version: %w", err)
	}

	// 浏览器级连接需要比本次请求活得更久，用于跟踪下载进度
	bg, cancel := context.WithTimeout(context.Background(), downloadWatchLimit)
	conn, err := rpcc.DialContext(bg, v.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return "", fmt.Errorf("dial browser: %w", err)
	}
	release := func() {
		cancel()
		_ = conn.Close()
	}
	c := cdp.NewClient(conn)

	behavior := browser.NewSetDownloadBehaviorArgs("allowAndName").
		SetDownloadPath(h.downloadDir).
		SetEventsEnabled(true)
	if err := c.Browser.SetDownloadBehavior(ctx, behavior); err != nil {
		release()
		return "", fmt.Errorf("set download behavior: %w", err)
	}

	beginCtx, stopBegin := context.WithTimeout(bg, downloadBeginTimeout)
	defer stopBegin()
	begin, err := c.Browser.DownloadWillBegin(beginCtx)
	if err != nil {
		release()
		return "", err
	}
	defer begin.Close()
	progress, err := c.Browser.DownloadProgress(bg)
	if err != nil {
		release()
		return "", err
	}

	// 辅助标签页先停在空白页，挂上响应拦截后再导航，媒体响应因此不会被内联播放
	helper, err := devtool.New(h.devtoolsURL).CreateURL(ctx, "about:blank")
	if err != nil {
		_ = progress.Close()
		release()
		return "", fmt.Errorf("create helper tab: %w", err)
	}
	stopHelper, err := h.navigateAsAttachment(bg, helper, url, filename)
	if err != nil {
		_ = progress.Close()
		release()
		h.closeHelper(helper)
		return "", err
	}

	ev, err := begin.Recv()
	stopHelper()
	h.closeHelper(helper)
	if err != nil {
		_ = progress.Close()
		release()
		if beginCtx.Err() != nil {
			return "", ErrDownloadNotStarted
		}
		return "", fmt.Errorf("wait download: %w", err)
	}

	h.log.Info("浏览器下载已开始", "guid", ev.GUID, "suggested", ev.SuggestedFilename, "filename", filename)
	go func() {
		defer release()
		defer progress.Close()
		h.follow(progress, ev.GUID, filename)
	}()
	return ev.GUID, nil
}

// navigateAsAttachment 连接辅助标签页，把导航响应改写为附件后开始导航；返回的函数断开该连接
func (h *Host) navigateAsAttachment(ctx context.Context, helper *devtool.Target, url, filename string) (func(), error) {
	pctx, cancel := context.WithCancel(ctx)
	conn, err := rpcc.DialContext(pctx, helper.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial helper tab: %w", err)
	}
	stop := func() {
		cancel()
		_ = conn.Close()
	}
	c := cdp.NewClient(conn)

	paused, err := c.Fetch.RequestPaused(pctx)
	if err != nil {
		stop()
		return nil, err
	}
	p := "*"
	patterns := []fetch.RequestPattern{{URLPattern: &p, RequestStage: fetch.RequestStageResponse}}
	if err := c.Fetch.Enable(pctx, fetch.NewEnableArgs().SetPatterns(patterns)); err != nil {
		_ = paused.Close()
		stop()
		return nil, fmt.Errorf("enable fetch: %w", err)
	}
	go func() {
		defer paused.Close()
		for {
			ev, err := paused.Recv()
			if err != nil {
				return
			}
			if err := continueAsAttachment(pctx, c.Fetch, ev, filename); err != nil {
				h.log.Debug("放行辅助标签页响应失败", "error", err)
			}
		}
	}()

	// 下载开始时导航会以 ERR_ABORTED 结束，属正常情况
	go func() {
		nav, err := c.Page.Navigate(pctx, page.NewNavigateArgs(url))
		if err != nil {
			h.log.Debug("辅助标签页导航失败", "error", err)
			return
		}
		if nav.ErrorText != nil {
			h.log.Debug("辅助标签页导航结束", "reason", *nav.ErrorText)
		}
	}()
	return stop, nil
}

func (h *Host) closeHelper(t *devtool.Target) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := devtool.New(h.devtoolsURL).Close(ctx, t); err != nil {
		h.log.Debug("关闭辅助标签页失败", "error", err)
	}
}

// responseContinuer 放行被拦截请求所需的 Fetch 调用
type responseContinuer interface {
	ContinueRequest(ctx context.Context, args *fetch.ContinueRequestArgs) error
	ContinueResponse(ctx context.Context, args *fetch.ContinueResponseArgs) error
}

// continueAsAttachment 成功响应追加附件头后放行；请求阶段、失败与重定向原样放行
func continueAsAttachment(ctx context.Context, f responseContinuer, ev *fetch.RequestPausedReply, filename string) error {
	if ev.ResponseStatusCode == nil || ev.ResponseErrorReason != nil {
		return f.ContinueRequest(ctx, fetch.NewContinueRequestArgs(ev.RequestID))
	}
	code := *ev.ResponseStatusCode
	args := fetch.NewContinueResponseArgs(ev.RequestID)
	if code >= 300 && code < 400 {
		return f.ContinueResponse(ctx, args)
	}
	// 覆盖响应头时状态码必须一并提供
	args.ResponseCode = &code
	args.ResponseHeaders = attachmentHeaders(ev.ResponseHeaders, filename)
	return f.ContinueResponse(ctx, args)
}

// attachmentHeaders 替换 Content-Disposition 为附件
func attachmentHeaders(in []fetch.HeaderEntry, filename string) []fetch.HeaderEntry {
	out := make([]fetch.HeaderEntry, 0, len(in)+1)
	for _, h := range in {
		if strings.EqualFold(h.Name, "Content-Disposition") {
			continue
		}
		out = append(out, h)
	}
	disposition := "attachment"
	if name := safeFilename(filename, ""); name != "" {
		if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
			disposition = v
		}
	}
	return append(out, fetch.HeaderEntry{Name: "Content-Disposition", Value: disposition})
}

// follow 跟踪下载进度，完成后把 GUID 文件重命名为目标文件名
func (h *Host) follow(progress browser.DownloadProgressClient, guid, filename string) {
	for {
		ev, err := progress.Recv()
		if err != nil {
			h.log.Debug("下载进度流结束", "guid", guid, "error", err)
			return
		}
		if ev.GUID != guid {
			continue
		}
		switch ev.State {
		case "completed":
			dst := availableName(h.downloadDir, safeFilename(filename, guid))
			if err := os.Rename(filepath.Join(h.downloadDir, guid), dst); err != nil {
				h.log.Err(err, "下载文件重命名失败", "guid", guid)
				return
			}
			h.log.Info("浏览器下载完成", "guid", guid, "path", dst)
			return
		case "canceled":
			h.log.Warn("浏览器下载已取消", "guid", guid)
			return
		}
	}
}

// safeFilename 只保留文件名部分，非法时退回 fallback
func safeFilename(name, fallback string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		return fallback
	}
	return base
}

// availableName 目标已存在时追加序号 name (1).ext
func availableName(dir, name string) string {
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return p
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		p = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p
		}
	}
}
