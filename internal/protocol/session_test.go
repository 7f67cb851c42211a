package protocol

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/rbright/sightline/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestSessionExchangeOverPipe(t *testing.T) {
	client, server := Pipe()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	session := NewSession(client, logger)

	require.NoError(t, session.Send(CommandLaunch))
	require.Equal(t, CommandLaunch, session.Outstanding())

	line, err := server.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "LAUNCH", line)
	require.NoError(t, server.SendLine("5.2$-1.0"))

	reply, err := session.Receive()
	require.NoError(t, err)
	require.Equal(t, "5.2$-1.0", reply)
	require.Equal(t, Command(""), session.Outstanding())

	require.Contains(t, logs.String(), `"msg":"protocol sent"`)
	require.Contains(t, logs.String(), `"command":"LAUNCH"`)
	require.Contains(t, logs.String(), `"line":"5.2$-1.0"`)
}

func TestSessionRefusesSecondOutstandingRequest(t *testing.T) {
	client, server := Pipe()
	session := NewSession(client, nil)

	require.NoError(t, session.Send(CommandProceed))
	err := session.Send(CommandTake)
	require.ErrorIs(t, err, ErrRequestOutstanding)

	line, err := server.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "PROCEED", line)

	// Nothing else reached the wire.
	server.SetReceiveTimeout(20 * time.Millisecond)
	_, err = server.ReceiveLine()
	require.ErrorIs(t, err, transport.ErrTimeout)
}

func TestSessionStopBypassesOutstandingGuard(t *testing.T) {
	client, server := Pipe()
	session := NewSession(client, nil)

	require.NoError(t, session.Send(CommandProceed))
	require.NoError(t, session.Send(CommandStop))
	require.Equal(t, CommandProceed, session.Outstanding())

	first, err := server.ReceiveLine()
	require.NoError(t, err)
	second, err := server.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, []string{"PROCEED", "STOP"}, []string{first, second})
}

func TestSessionReceiveErrorSettlesRequest(t *testing.T) {
	client, _ := Pipe()
	client.SetReceiveTimeout(10 * time.Millisecond)
	session := NewSession(client, nil)

	require.NoError(t, session.Send(CommandTake))
	_, err := session.Receive()
	require.ErrorIs(t, err, transport.ErrTimeout)
	require.Equal(t, Command(""), session.Outstanding())

	require.NoError(t, session.Send(CommandTake))
}

func TestSessionDrainDiscardsOwedReply(t *testing.T) {
	client, server := Pipe()
	session := NewSession(client, nil)

	require.NoError(t, session.Drain())

	require.NoError(t, session.Send(CommandProceed))
	require.NoError(t, server.SendLine("1$2"))
	require.NoError(t, session.Drain())
	require.Equal(t, Command(""), session.Outstanding())

	require.NoError(t, session.Send(CalibrationRequest(Bounds{XMin: -1, XMax: 1, YMin: -1, YMax: 1, Passes: 1})))
	require.NoError(t, server.SendLine(ReplyCalibrate))
	reply, err := session.Receive()
	require.NoError(t, err)
	require.Equal(t, ReplyCalibrate, reply)
}

func TestPipePeerCloseDeliversBufferedLinesFirst(t *testing.T) {
	client, server := Pipe()
	require.NoError(t, server.SendLine("WAITING"))
	require.NoError(t, server.Close())

	line, err := client.ReceiveLine()
	require.NoError(t, err)
	require.Equal(t, "WAITING", line)

	_, err = client.ReceiveLine()
	require.ErrorIs(t, err, transport.ErrIO)
	require.ErrorIs(t, client.SendLine("STOP"), transport.ErrIO)
}

func TestSessionCloseClosesTransport(t *testing.T) {
	client, _ := Pipe()
	session := NewSession(client, nil)

	require.NoError(t, session.Close())
	require.ErrorIs(t, session.Send(CommandLaunch), transport.ErrIO)
}
