package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mafredri/cdp/devtool"

	"mediasniff/internal/logger"
)

// ErrNotFound 未找到可用的浏览器
var ErrNotFound = errors.New("chrome executable not found")

// Options 浏览器启动选项
type Options struct {
	ExecPath            string   // 浏览器可执行文件路径
	UserDataDir         string   // 用户数据目录
	RemoteDebuggingPort int      // CDP端口，0表示自动选择
	Headless            bool     // 是否以无头模式启动
	Args                []string // 额外启动参数
}

// Browser 已启动的浏览器进程句柄
type Browser struct {
	cmd         *exec.Cmd
	DevToolsURL string
	log         logger.Logger
}

// Start 启动浏览器并等待CDP服务就绪
func Start(ctx context.Context, opts Options, l logger.Logger) (*Browser, error) {
	log := logger.Component(l, "browser")
	exe := opts.ExecPath
	if exe == "" {
		exe = defaultChromePath()
	}
	if exe == "" {
		return nil, ErrNotFound
	}
	port := opts.RemoteDebuggingPort
	if port == 0 {
		p, err := pickFreePort()
		if err != nil {
			port = 9222
		} else {
			port = p
		}
	}

	cmd := exec.Command(exe, buildArgs(opts, port)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	b := &Browser{cmd: cmd, DevToolsURL: fmt.Sprintf("http://127.0.0.1:%d", port), log: log}
	log.Info("浏览器已启动", "exec", exe, "devtools", b.DevToolsURL)

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := waitDevToolsReady(wctx, b.DevToolsURL); err != nil {
		_ = b.Stop(2 * time.Second)
		return nil, err
	}
	return b, nil
}

// buildArgs 组装启动参数
func buildArgs(opts Options, port int) []string {
	dir := opts.UserDataDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "mediasniff-chrome")
	}
	_ = os.MkdirAll(dir, 0o755)
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		fmt.Sprintf("--user-data-dir=%s", dir),
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	return append(args, opts.Args...)
}

// Stop 关闭浏览器进程（尽力而为）
func (b *Browser) Stop(timeout time.Duration) error {
	if b == nil || b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	_ = b.cmd.Process.Kill()
	select {
	case <-time.After(timeout):
		return errors.New("browser stop timeout")
	case err := <-done:
		b.log.Info("浏览器已关闭")
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	}
}

// defaultChromePath 返回常见的Chrome可执行路径
func defaultChromePath() string {
	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// 退化为PATH查找
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// pickFreePort 选择一个本地空闲端口
func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitDevToolsReady 轮询DevTools服务是否就绪
func waitDevToolsReady(ctx context.Context, base string) error {
	dt := devtool.New(base)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		rctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		_, err := dt.Version(rctx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.New("devtools not ready")
		case <-ticker.C:
		}
	}
}
