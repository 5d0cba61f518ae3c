package electrum

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

const dialTimeout = 15 * time.Second

// conn carries one JSON document per message regardless of the underlying
// transport.
type conn interface {
	send(msg []byte) error
	recv() ([]byte, error)
	setReadDeadline(t time.Time) error
	close() error
}

// tcpConn speaks the newline delimited framing used over raw TCP and TLS.
type tcpConn struct {
	nc  net.Conn
	r   *bufio.Reader
	wMu sync.Mutex
}

func (c *tcpConn) send(msg []byte) error {
	c.wMu.Lock()
	defer c.wMu.Unlock()

	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	_, err := c.nc.Write(buf)
	return err
}

func (c *tcpConn) recv() ([]byte, error) {
	return c.r.ReadBytes('\n')
}

func (c *tcpConn) setReadDeadline(t time.Time) error {
	return c.nc.SetReadDeadline(t)
}

func (c *tcpConn) close() error {
	return c.nc.Close()
}

type wsConn struct {
	ws  *websocket.Conn
	wMu sync.Mutex
}

func (c *wsConn) send(msg []byte) error {
	c.wMu.Lock()
	defer c.wMu.Unlock()

	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsConn) recv() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) setReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) close() error {
	return c.ws.Close()
}

// dialEndpoint opens a transport connection to an endpoint url of the form
// tcp://host:port, ssl://host:port, ws://host[:port]/path or wss://..., going
// through the given SOCKS5 proxy if proxyAddr is not empty.
func dialEndpoint(
	ctx context.Context, endpoint, proxyAddr string, insecure bool,
) (conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, ErrInvalidEndpoint
	}

	dialCtx, err := dialContextFunc(proxyAddr)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "tcp", "ssl":
		nc, err := dialCtx(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "ssl" {
			tlsConn := tls.Client(nc, &tls.Config{
				ServerName:         u.Hostname(),
				InsecureSkipVerify: insecure,
			})
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				nc.Close()
				return nil, err
			}
			nc = tlsConn
		}
		return &tcpConn{nc: nc, r: bufio.NewReader(nc)}, nil
	case "ws", "wss":
		dialer := websocket.Dialer{
			NetDialContext:   dialCtx,
			HandshakeTimeout: dialTimeout,
		}
		if u.Scheme == "wss" {
			dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure}
		}
		ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp.Body.Close()
		return &wsConn{ws: ws}, nil
	default:
		return nil, ErrInvalidEndpoint
	}
}

func dialContextFunc(
	proxyAddr string,
) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if proxyAddr == "" {
		d := &net.Dialer{Timeout: dialTimeout}
		return d.DialContext, nil
	}

	socks, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	if ctxDialer, ok := socks.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return socks.Dial(network, addr)
	}, nil
}
