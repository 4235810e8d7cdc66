package interfaces

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seckill/internal/service/sales/domain"
)

func dialHub(t *testing.T, hub *DashboardHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDashboardHubBroadcast(t *testing.T) {
	hub := NewDashboardHub(20 * time.Millisecond)
	go hub.Run()

	conn := dialHub(t, hub)
	// 等注册进入主循环
	time.Sleep(50 * time.Millisecond)

	hub.Publish(domain.Dashboard{Date: "20260829", TotalUnits: 7})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var dash domain.Dashboard
	require.NoError(t, json.Unmarshal(payload, &dash))
	assert.Equal(t, "20260829", dash.Date)
	assert.Equal(t, int64(7), dash.TotalUnits)
}

// throttle 窗口内的多次发布只推送最后一个快照。
func TestDashboardHubCoalescesPublishes(t *testing.T) {
	hub := NewDashboardHub(50 * time.Millisecond)
	go hub.Run()

	conn := dialHub(t, hub)
	time.Sleep(80 * time.Millisecond)

	hub.Publish(domain.Dashboard{Date: "20260829", TotalUnits: 1})
	hub.Publish(domain.Dashboard{Date: "20260829", TotalUnits: 2})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var dash domain.Dashboard
	require.NoError(t, json.Unmarshal(payload, &dash))
	assert.Equal(t, int64(2), dash.TotalUnits, "only the latest snapshot in the window is pushed")
}
