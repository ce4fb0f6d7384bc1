package relay

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Converts a directive or command line argument to a TCP port number.
func parsePort(arg string) (port int, err error) {
	port, err = strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return
	}
	if port < 0 || port > 65535 {
		err = fmt.Errorf("port %d out of range", port)
	}
	return
}

// Returns the port given on the command line, or DefaultPort if the
// argument is absent or not a usable port.
func PortOrDefault(arg string) int {
	port, err := parsePort(arg)
	if err != nil || port == 0 {
		return DefaultPort
	}
	return port
}

func joinEndpoint(iface string, port int) string {
	return net.JoinHostPort(iface, strconv.Itoa(port))
}
