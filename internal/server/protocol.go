package server

import (
	"bufio"
	"bytes"
	"net"
)

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolHTTP
)

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"), // OPTIONS
	[]byte("PATC"), // PATCH
	[]byte("DELE"), // DELETE
	[]byte("CONN"), // CONNECT
}

// detectProtocol peeks at the first bytes to determine protocol type.
// Raw TCP frames start with a binary length prefix, WebSocket clients with
// an HTTP request line.
func detectProtocol(conn net.Conn) (protocolType, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	peek, err := reader.Peek(4)
	if err != nil {
		return protocolTCP, reader, err
	}

	for _, method := range httpMethods {
		if bytes.HasPrefix(peek, method) {
			return protocolHTTP, reader, nil
		}
	}
	return protocolTCP, reader, nil
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}
