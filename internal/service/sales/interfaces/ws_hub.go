package interfaces

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"seckill/internal/pkg/logger"
	"seckill/internal/pkg/metrics"
	"seckill/internal/service/sales/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// DashboardHub 维护所有订阅实时看板的 WebSocket 连接并负责广播。
// 摄入高峰期不能每个事件推一次，按 throttle 间隔合并推送。
type DashboardHub struct {
	clients    map[*hubClient]bool
	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan []byte

	throttle time.Duration
	mu       sync.Mutex
	pending  []byte // throttle 窗口内最后一次的快照
}

type hubClient struct {
	hub  *DashboardHub
	conn *websocket.Conn
	send chan []byte
}

// NewDashboardHub 创建广播中心。调用方需要启动 Run。
func NewDashboardHub(throttle time.Duration) *DashboardHub {
	if throttle <= 0 {
		throttle = 500 * time.Millisecond
	}
	return &DashboardHub{
		clients:    make(map[*hubClient]bool),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan []byte, 16),
		throttle:   throttle,
	}
}

// Run 是 Hub 的主循环，应在独立 goroutine 中运行。
func (h *DashboardHub) Run() {
	ticker := time.NewTicker(h.throttle)
	defer ticker.Stop()
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			metrics.DashboardClients.Inc()
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.DashboardClients.Dec()
			}
		case payload := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// 写不过来的慢客户端直接踢掉，不拖累广播
					delete(h.clients, client)
					close(client.send)
					metrics.DashboardClients.Dec()
				}
			}
		case <-ticker.C:
			h.mu.Lock()
			payload := h.pending
			h.pending = nil
			h.mu.Unlock()
			if payload != nil {
				select {
				case h.broadcast <- payload:
				default:
				}
			}
		}
	}
}

// Publish 接收一次看板快照。throttle 窗口内多次调用只保留最后一次。
func (h *DashboardHub) Publish(dash domain.Dashboard) {
	payload, err := json.Marshal(dash)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.pending = payload
	h.mu.Unlock()
}

// ServeWs 把 HTTP 连接升级为 WebSocket 并注册到 Hub。
func (h *DashboardHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &hubClient{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *hubClient) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readPump 只负责发现连接关闭（客户端不向服务端发业务消息）。
func (c *hubClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
