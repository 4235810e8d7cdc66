package utils

import (
	"net"
)

// GetOutboundIP 获取本机对外通信使用的 IP。
// 通过向一个公网地址发起 UDP "连接"（不产生真实流量）让内核选路。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
