// internal/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 是 *zk.Conn 的一层薄封装，统一连接参数。
type Conn struct {
	*zk.Conn
}

// Connect 建立 ZooKeeper 会话。addrs 为逗号分隔的地址列表。
func Connect(addrs string) (*Conn, error) {
	c, _, err := zk.Connect(strings.Split(addrs, ","), 10*time.Second, zk.WithLogInfo(false))
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c}, nil
}
