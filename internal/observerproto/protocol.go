package observerproto

// Version is the observer protocol version (separate from the HTTP facade).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks thins the stream to one frame per N ticks.
	EveryTicks    int  `json:"every_ticks,omitempty"`
	IncludeEvents bool `json:"include_events,omitempty"`
	// CompactCells asks for cells_rle instead of cells.
	CompactCells bool `json:"compact_cells,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	RunID           string     `json:"run_id"`
	Tick            uint64     `json:"tick"`
	GridParams      GridParams `json:"grid_params"`
	Encoding        Encoding   `json:"encoding"`
}

type GridParams struct {
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	Robots   int   `json:"robots"`
	Boxes    int   `json:"boxes"`
	Shelves  int   `json:"shelves"`
	MaxStack int   `json:"max_stack"`
	Seed     int64 `json:"seed"`
}

// Encoding documents how cell values are formed so viewers can decode them.
type Encoding struct {
	Robot    float64 `json:"robot"`
	RobotBox float64 `json:"robot_box"`
	Box      float64 `json:"box"`
	Shelf    float64 `json:"shelf"`
	ShelfBox float64 `json:"shelf_box"`
}

// Server -> Client. Sent every tick (or every EveryTicks ticks).
// Cells are column-major: index x*height + y. CellsRLE, when set, carries the same values
// run-length encoded and Cells is omitted.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Tick            uint64 `json:"tick"`

	Width  int       `json:"width"`
	Height int       `json:"height"`
	Cells    []float64 `json:"cells,omitempty"`
	CellsRLE string    `json:"cells_rle,omitempty"`

	Totals Totals      `json:"totals"`
	Events []EventInfo `json:"events,omitempty"`
}

type Totals struct {
	OnStacks  int `json:"on_stacks"`
	OnShelves int `json:"on_shelves"`
	Carried   int `json:"carried"`
	Stacks    int `json:"stacks"`
}

type EventInfo struct {
	Type   string `json:"type"`
	Entity int    `json:"entity"`
	Target int    `json:"target,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Dir    string `json:"dir,omitempty"`
}
