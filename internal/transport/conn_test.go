package transport

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startServer accepts one connection and hands it to serve.
func startServer(t *testing.T, serve func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()

	return listener.Addr().String()
}

func testOptions(addr string) Options {
	return Options{
		Address:        addr,
		DialTimeout:    time.Second,
		SendTimeout:    time.Second,
		ReceiveTimeout: 500 * time.Millisecond,
	}
}

func TestSendAndReceiveLines(t *testing.T) {
	received := make(chan string, 1)
	addr := startServer(t, func(conn net.Conn) {
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return
		}
		received <- line
		_, _ = conn.Write([]byte("5.2$-1.0\r\nCAL\n"))
		time.Sleep(100 * time.Millisecond)
	})

	conn, err := Dial(context.Background(), testOptions(addr))
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, addr, conn.Address())

	require.NoError(t, conn.SendLine("LAUNCH"))
	require.Equal(t, "LAUNCH\n", <-received)

	line, err := conn.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "5.2$-1.0", line)

	line, err = conn.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "CAL", line)
}

func TestDialRefusedIsConnectionError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = Dial(context.Background(), testOptions(addr))
	require.ErrorIs(t, err, ErrConnection)
	require.True(t, IsConnectionRefused(err))
}

func TestReceiveTimeoutKeepsConnectionUsable(t *testing.T) {
	release := make(chan struct{})
	addr := startServer(t, func(conn net.Conn) {
		<-release
		_, _ = conn.Write([]byte("NEXT\n"))
		time.Sleep(100 * time.Millisecond)
	})

	opts := testOptions(addr)
	opts.ReceiveTimeout = 50 * time.Millisecond
	conn, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReceiveLine()
	require.ErrorIs(t, err, ErrTimeout)
	require.NotErrorIs(t, err, ErrIO)

	close(release)
	conn.opts.ReceiveTimeout = time.Second
	line, err := conn.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "NEXT", line)
}

func TestReceiveKeepsPartialLineAcrossTimeout(t *testing.T) {
	release := make(chan struct{})
	addr := startServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("WAIT"))
		<-release
		_, _ = conn.Write([]byte("ING\n"))
		time.Sleep(100 * time.Millisecond)
	})

	opts := testOptions(addr)
	opts.ReceiveTimeout = 50 * time.Millisecond
	conn, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReceiveLine()
	require.ErrorIs(t, err, ErrTimeout)

	close(release)
	conn.opts.ReceiveTimeout = time.Second
	line, err := conn.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "WAITING", line)
}

func TestPeerCloseBreaksConnection(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("NEXT\nWAITING"))
	})

	conn, err := Dial(context.Background(), testOptions(addr))
	require.NoError(t, err)
	defer conn.Close()

	line, err := conn.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "NEXT", line)

	line, err = conn.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "WAITING", line)

	_, err = conn.ReceiveLine()
	require.ErrorIs(t, err, ErrIO)

	err = conn.SendLine("PROCEED")
	require.ErrorIs(t, err, ErrIO)
}

func TestSendLineRejectsEmbeddedNewline(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		time.Sleep(100 * time.Millisecond)
	})

	conn, err := Dial(context.Background(), testOptions(addr))
	require.NoError(t, err)
	defer conn.Close()

	err = conn.SendLine("TAKE\nTAKE")
	require.ErrorIs(t, err, ErrInvalidLine)

	require.NoError(t, conn.SendLine("TAKE"))
}

func TestCloseIsIdempotent(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		time.Sleep(100 * time.Millisecond)
	})

	conn, err := Dial(context.Background(), testOptions(addr))
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.ReceiveLine()
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, conn.SendLine("STOP"), ErrIO)
}
