package aria2

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"mediasniff/pkg/model"
)

func testRecord() *model.MediaRecord {
	return &model.MediaRecord{
		URL:            "https://x.googlevideo.com/videoplayback?id=A&itag=140",
		Type:           model.StreamAudio,
		ID:             "A",
		Itag:           "140",
		RequestHeaders: []model.HeaderEntry{{Name: "user-agent", Value: "UA"}, {Name: "cookie", Value: "c=1"}},
	}
}

func rpcServer(t *testing.T, status int, reply string, got *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			*got = body
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAddURI_SuccessWithToken(t *testing.T) {
	var body []byte
	srv := rpcServer(t, http.StatusOK, `{"jsonrpc":"2.0","id":"1","result":"2089b05ecca3d829"}`, &body)
	c := New(srv.Client())
	c.newID = func() string { return "req-1" }

	res, err := c.AddURI(context.Background(), model.Aria2Settings{URL: srv.URL, Token: "s3cret"}, testRecord(), "song.mp3")

	require.NoError(t, err)
	assert.Equal(t, "2089b05ecca3d829", res)

	doc := gjson.ParseBytes(body)
	assert.Equal(t, "2.0", doc.Get("jsonrpc").String())
	assert.Equal(t, "req-1", doc.Get("id").String())
	assert.Equal(t, "aria2.addUri", doc.Get("method").String())
	params := doc.Get("params").Array()
	require.Len(t, params, 3)
	assert.Equal(t, "token:s3cret", params[0].String())
	assert.Equal(t, "https://x.googlevideo.com/videoplayback?id=A&itag=140", params[1].Array()[0].String())
	assert.Equal(t, "song.mp3", params[2].Get("out").String())
	assert.Equal(t, "UA", params[2].Get("user-agent").String())
	assert.Equal(t, `["user-agent: UA","cookie: c=1"]`, params[2].Get("header").Raw)
}

func TestAddURI_WithoutToken(t *testing.T) {
	var body []byte
	srv := rpcServer(t, http.StatusOK, `{"jsonrpc":"2.0","id":"1"}`, &body)

	res, err := New(srv.Client()).AddURI(context.Background(), model.Aria2Settings{URL: srv.URL}, testRecord(), "a.mp3")

	require.NoError(t, err)
	assert.Equal(t, true, res)
	params := gjson.GetBytes(body, "params").Array()
	require.Len(t, params, 2)
	assert.True(t, params[0].IsArray())
}

func TestAddURI_NotConfigured(t *testing.T) {
	_, err := New(nil).AddURI(context.Background(), model.Aria2Settings{}, testRecord(), "a.mp3")

	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAddURI_HTTPError(t *testing.T) {
	srv := rpcServer(t, http.StatusUnauthorized, `nope`, nil)

	_, err := New(srv.Client()).AddURI(context.Background(), model.Aria2Settings{URL: srv.URL}, testRecord(), "a.mp3")

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "aria2: rpc http 401", err.Error())
}

func TestAddURI_RPCError(t *testing.T) {
	srv := rpcServer(t, http.StatusOK, `{"jsonrpc":"2.0","id":"1","error":{"code":1,"message":"Unauthorized"}}`, nil)

	_, err := New(srv.Client()).AddURI(context.Background(), model.Aria2Settings{URL: srv.URL}, testRecord(), "a.mp3")

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(1), rpcErr.Code)
	assert.Equal(t, "Unauthorized", err.Error())
}

func TestAddURI_TransportError(t *testing.T) {
	srv := rpcServer(t, http.StatusOK, `{}`, nil)
	url := srv.URL
	srv.Close()

	_, err := New(nil).AddURI(context.Background(), model.Aria2Settings{URL: url}, testRecord(), "a.mp3")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "aria2 rpc")
}

func TestBuildAddURI_Order(t *testing.T) {
	body, err := BuildAddURI("x", "tk", "https://u", map[string]any{"out": "o"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"x","method":"aria2.addUri","params":["token:tk",["https://u"],{"out":"o"}]}`, string(body))
}
