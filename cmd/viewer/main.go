package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/tuning"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "run snapshot to play back")
		dataDir  = flag.String("data", "./data", "runtime data directory (with -run)")
		runID    = flag.String("run", "", "play the latest snapshot of this run")
		live     = flag.String("live", "", "admin base url of a running server, e.g. http://127.0.0.1:8586")
		every    = flag.Int("every", 1, "live mode: show one frame per N ticks")
		tickMS   = flag.Int("tick_ms", 0, "playback delay per frame (0: tuning tick_duration_ms, else 150)")
		tunePath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	)
	flag.Parse()

	delay := time.Duration(*tickMS) * time.Millisecond
	if delay <= 0 {
		if t, err := tuning.Load(*tunePath); err == nil && t.TickDurationMs > 0 {
			delay = time.Duration(t.TickDurationMs) * time.Millisecond
		} else {
			delay = 150 * time.Millisecond
		}
	}

	if strings.TrimSpace(*live) != "" {
		if err := runLive(strings.TrimSpace(*live), *every); err != nil {
			fmt.Fprintln(os.Stderr, "viewer:", err)
			os.Exit(1)
		}
		return
	}

	path := strings.TrimSpace(*snapPath)
	if path == "" && *runID != "" {
		path = snapshot.Latest(filepath.Join(*dataDir, "runs", *runID, "snapshots"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "provide -snapshot, -run or -live")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	p, err := newPlayback(snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := runPlayback(p, delay); err != nil {
		fmt.Fprintln(os.Stderr, "viewer:", err)
		os.Exit(1)
	}
}

func newScreen() (tcell.Screen, chan tcell.Event, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, nil, err
	}
	if err := s.Init(); err != nil {
		return nil, nil, err
	}
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := s.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()
	return s, events, nil
}

func isQuit(ev *tcell.EventKey) bool {
	return ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
		(ev.Key() == tcell.KeyRune && ev.Rune() == 'q')
}

func runPlayback(p *playback, delay time.Duration) error {
	s, events, err := newScreen()
	if err != nil {
		return err
	}
	defer s.Fini()

	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	paused := false
	drawFrame(s, p.current(paused), p.enc, p.maxStack)
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch {
				case isQuit(ev):
					return nil
				case ev.Key() == tcell.KeyRune && ev.Rune() == ' ':
					paused = !paused
				case ev.Key() == tcell.KeyRight:
					paused = true
					p.step(1)
				case ev.Key() == tcell.KeyLeft:
					paused = true
					p.step(-1)
				case ev.Key() == tcell.KeyHome:
					p.pos = 0
				}
			case *tcell.EventResize:
				s.Sync()
			}
		case <-ticker.C:
			if !paused && !p.atEnd() {
				p.step(1)
			}
		}
		drawFrame(s, p.current(paused), p.enc, p.maxStack)
	}
}

func runLive(baseURL string, every int) error {
	boot, err := fetchBootstrap(baseURL)
	if err != nil {
		return err
	}
	conn, err := dialObserver(baseURL, every)
	if err != nil {
		return err
	}
	defer conn.Close()

	frames := make(chan viewFrame, 4)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			f, err := decodeLive(raw)
			if err != nil {
				continue
			}
			select {
			case frames <- f:
			default:
			}
		}
	}()

	s, events, err := newScreen()
	if err != nil {
		return err
	}
	defer s.Fini()

	enc := encodingFrom(boot.Encoding)
	maxStack := boot.GridParams.MaxStack
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if isQuit(ev) {
					return nil
				}
			case *tcell.EventResize:
				s.Sync()
			}
		case f := <-frames:
			drawFrame(s, f, enc, maxStack)
		case err := <-readErr:
			return err
		}
	}
}
