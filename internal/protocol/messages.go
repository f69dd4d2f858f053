package protocol

// InitRequest is the body of the POST that creates the simulation. Field names are
// upper-case on the wire.
type InitRequest struct {
	MapW     int    `json:"MAP_W"`
	MapH     int    `json:"MAP_H"`
	RobotNum int    `json:"ROBOT_NUM"`
	BoxNum   int    `json:"BOX_NUM"`
	Seed     *int64 `json:"SEED,omitempty"`
}

// Position is one live entity in a step response. x and z are grid coordinates; y is the
// height of the top box for stacks and 0 otherwise.
type Position struct {
	X int `json:"x"`
	Z int `json:"z"`
	Y int `json:"y"`
}

// StepResponse answers every POST: robots first, then box stacks, then shelves.
type StepResponse struct {
	Data []Position `json:"data"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
