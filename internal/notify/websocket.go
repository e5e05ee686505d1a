package notify

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"mediasniff/pkg/model"
)

// wsObserver 通过 WebSocket 连接接收推送的观察者
type wsObserver struct {
	id   string
	tab  model.TabID
	page string
	conn *websocket.Conn
}

func (o *wsObserver) ID() string       { return o.id }
func (o *wsObserver) Tab() model.TabID { return o.tab }
func (o *wsObserver) PageURL() string  { return o.page }

func (o *wsObserver) Deliver(ctx context.Context, ev model.ObserverEvent) error {
	return wsjson.Write(ctx, o.conn, ev)
}

// Handler 返回观察者 WebSocket 接入处理器
// 查询参数 tabId 与 pageUrl 标识观察者所在页面；originPatterns 为允许的跨域来源
func (h *Hub) Handler(originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			h.log.Debug("观察者握手失败", "error", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		o := &wsObserver{
			id:   uuid.NewString(),
			tab:  model.TabID(r.URL.Query().Get("tabId")),
			page: r.URL.Query().Get("pageUrl"),
			conn: conn,
		}
		unregister := h.Register(o)
		defer unregister()

		// 观察者只接收推送，读循环仅用于感知连接关闭
		ctx := conn.CloseRead(r.Context())
		<-ctx.Done()
	}
}
