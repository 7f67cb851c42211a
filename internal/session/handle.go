package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/sightline/internal/ipc"
)

// ErrNoMarkerAwaiting rejects a trigger while no marker is highlighted.
var ErrNoMarkerAwaiting = errors.New("no calibration marker awaiting trigger")

// Handle serves IPC commands for the owning process.
func (l *Lifecycle) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		resp := l.response()
		resp.OK = true
		resp.Message = "status"
		return resp
	case ipc.CommandTrigger:
		if !l.Trigger() {
			resp := l.response()
			resp.Error = ErrNoMarkerAwaiting.Error()
			return resp
		}
		resp := l.response()
		resp.OK = true
		resp.Message = "trigger accepted"
		return resp
	default:
		resp := l.response()
		resp.Error = fmt.Sprintf("unknown command: %s", req.Command)
		return resp
	}
}

func (l *Lifecycle) response() ipc.Response {
	status := l.Status()
	return ipc.Response{
		Screen:     string(status.Screen),
		State:      string(status.Calibration),
		Calibrated: status.Calibrated,
		X:          status.Target.X,
		Y:          status.Target.Y,
	}
}
