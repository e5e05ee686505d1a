package aria2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"mediasniff/internal/command"
	"mediasniff/pkg/model"
)

// ErrNotConfigured 未配置 RPC 地址
var ErrNotConfigured = errors.New("aria2: rpc url not configured")

// HTTPError RPC 请求返回非 2xx 状态
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("aria2: rpc http %d", e.StatusCode) }

// RPCError RPC 响应携带 error 字段
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return "aria2: rpc error"
	}
	return e.Message
}

const maxResponseSize = 1 << 20

// Client aria2 JSON-RPC 客户端
type Client struct {
	http  *http.Client
	newID func() string
}

// New 创建客户端，hc 为空时使用 10 秒超时的默认客户端
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: hc, newID: uuid.NewString}
}

// BuildAddURI 构造 aria2.addUri 请求体：params 依次为可选 token、地址数组、下载选项
func BuildAddURI(id, token, uri string, options map[string]any) ([]byte, error) {
	body, err := sjson.SetBytes(nil, "jsonrpc", "2.0")
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "id", id); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "method", "aria2.addUri"); err != nil {
		return nil, err
	}
	if body, err = sjson.SetRawBytes(body, "params", []byte("[]")); err != nil {
		return nil, err
	}
	if token != "" {
		if body, err = sjson.SetBytes(body, "params.-1", "token:"+token); err != nil {
			return nil, err
		}
	}
	if body, err = sjson.SetBytes(body, "params.-1", []string{uri}); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "params.-1", options)
}

// AddURI 将记录交给外部下载代理，返回代理给出的 GID；代理未返回结果时返回 true
func (c *Client) AddURI(ctx context.Context, settings model.Aria2Settings, rec *model.MediaRecord, filename string) (any, error) {
	if settings.URL == "" {
		return nil, ErrNotConfigured
	}
	body, err := BuildAddURI(c.newID(), settings.Token, rec.PlaybackURL(), command.AddURIOptions(rec, filename))
	if err != nil {
		return nil, fmt.Errorf("build aria2 request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build aria2 request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aria2 rpc: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read aria2 response: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("aria2 rpc: invalid json response")
	}
	if e := gjson.GetBytes(data, "error"); e.Exists() && e.Type != gjson.Null {
		return nil, &RPCError{Code: e.Get("code").Int(), Message: e.Get("message").String()}
	}
	result := gjson.GetBytes(data, "result")
	if !result.Exists() || result.Type == gjson.Null {
		return true, nil
	}
	return result.Value(), nil
}
