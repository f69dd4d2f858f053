package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"warehousesim/internal/observerproto"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/protocol"
	"warehousesim/internal/sim/encoding"
	"warehousesim/internal/sim/warehouse"
)

type viewFrame struct {
	Tick   uint64
	Width  int
	Height int
	Cells  []float64
	Title  string
	Status string
}

// playback steps through the frame history stored in a run snapshot.
type playback struct {
	runID    string
	width    int
	height   int
	frames   []snapshot.FrameV1
	enc      warehouse.Encoding
	maxStack int
	pos      int
}

func newPlayback(snap snapshot.SnapshotV1) (*playback, error) {
	if len(snap.Frames) == 0 {
		return nil, fmt.Errorf("snapshot %s has no frames", snap.Header.RunID)
	}
	return &playback{
		runID:    snap.Header.RunID,
		width:    snap.Width,
		height:   snap.Height,
		frames:   snap.Frames,
		enc:      warehouse.ConfigOf(snap).Encoding,
		maxStack: snap.MaxStack,
	}, nil
}

func (p *playback) step(delta int) {
	p.pos += delta
	if p.pos < 0 {
		p.pos = 0
	}
	if p.pos >= len(p.frames) {
		p.pos = len(p.frames) - 1
	}
}

func (p *playback) atEnd() bool { return p.pos == len(p.frames)-1 }

func (p *playback) current(paused bool) viewFrame {
	f := p.frames[p.pos]
	state := "playing"
	if paused {
		state = "paused"
	}
	return viewFrame{
		Tick:   f.Tick,
		Width:  p.width,
		Height: p.height,
		Cells:  f.Cells,
		Title:  fmt.Sprintf("run %s  tick %d/%d  %dx%d", p.runID, f.Tick, len(p.frames)-1, p.width, p.height),
		Status: fmt.Sprintf("[%s] space pause  ←/→ step  q quit", state),
	}
}

// dialObserver subscribes to a running server's observer stream.
func dialObserver(rawURL string, every int) (*websocket.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimRight(u.Path, "/") + "/admin/v1/observer/ws"
	}
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	sub := observerproto.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		EveryTicks:      every,
		CompactCells:    true,
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func decodeLive(raw []byte) (viewFrame, error) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return viewFrame{}, err
	}
	switch base.Type {
	case protocol.TypeFrame:
	case protocol.TypeError:
		var e protocol.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		return viewFrame{}, fmt.Errorf("observer error %s: %s", e.Code, e.Message)
	default:
		return viewFrame{}, fmt.Errorf("unexpected message type %q", base.Type)
	}
	var msg observerproto.FrameMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return viewFrame{}, err
	}
	if msg.CellsRLE != "" {
		cells, err := encoding.DecodeCells(msg.CellsRLE, msg.Width*msg.Height)
		if err != nil {
			return viewFrame{}, err
		}
		msg.Cells = cells
	}
	return viewFrame{
		Tick:   msg.Tick,
		Width:  msg.Width,
		Height: msg.Height,
		Cells:  msg.Cells,
		Title:  fmt.Sprintf("live run %s  tick %d  %dx%d", msg.RunID, msg.Tick, msg.Width, msg.Height),
		Status: fmt.Sprintf("stacks=%d on_shelves=%d carried=%d  q quit", msg.Totals.Stacks, msg.Totals.OnShelves, msg.Totals.Carried),
	}, nil
}

// fetchBootstrap reads grid parameters and the cell encoding from the admin listener.
func fetchBootstrap(baseURL string) (observerproto.BootstrapResponse, error) {
	var resp observerproto.BootstrapResponse
	u := strings.TrimRight(baseURL, "/") + "/admin/v1/observer/bootstrap"
	cl := &http.Client{Timeout: 5 * time.Second}
	r, err := cl.Get(u)
	if err != nil {
		return resp, err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("bootstrap: %s", r.Status)
	}
	err = json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func encodingFrom(e observerproto.Encoding) warehouse.Encoding {
	return warehouse.Encoding{Robot: e.Robot, RobotBox: e.RobotBox, Box: e.Box, Shelf: e.Shelf, ShelfBox: e.ShelfBox}
}
