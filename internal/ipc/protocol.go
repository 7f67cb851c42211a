package ipc

// Commands understood by the running owner.
const (
	CommandStatus  = "status"
	CommandTrigger = "trigger"
)

// Request is one command sent to the running owner.
type Request struct {
	Command string `json:"command"`
}

// Response answers one Request. X and Y carry the last gaze target.
type Response struct {
	OK         bool    `json:"ok"`
	Screen     string  `json:"screen,omitempty"`
	State      string  `json:"state,omitempty"`
	Calibrated bool    `json:"calibrated"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Failure builds a not-OK response carrying err.
func Failure(err error) Response {
	return Response{OK: false, Error: err.Error()}
}
