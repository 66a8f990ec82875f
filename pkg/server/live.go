package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reflow-dev/reflow/pkg/middleware"
	"github.com/reflow-dev/reflow/pkg/reflow"
)

// clientMessage is one frame from a live client.
type clientMessage struct {
	// Op is "watch", "unwatch" or "set".
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// serverMessage is one frame pushed to a live client.
type serverMessage struct {
	// Type is "update" or "error".
	Type  string `json:"type"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// liveSession is one websocket client with its watch bindings.
type liveSession struct {
	server *Server
	conn   *websocket.Conn

	// watchers maps watched paths to their live bindings.
	watchers   map[string]*reflow.Watcher
	watchersMu sync.Mutex

	// send is the outbound frame buffer. Watcher callbacks run on the
	// writer's goroutine; the write loop drains this channel so a slow
	// client never blocks a model write.
	send chan serverMessage

	closeOnce sync.Once
	done      chan struct{}
}

// handleLive upgrades the connection and runs the session until the
// client disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := &liveSession{
		server:   s,
		conn:     conn,
		watchers: make(map[string]*reflow.Watcher),
		send:     make(chan serverMessage, s.config.SendBuffer),
		done:     make(chan struct{}),
	}

	middleware.SessionOpened()
	defer middleware.SessionClosed()

	go sess.writeLoop()
	sess.readLoop()
}

// close tears the session down: every watcher is disposed so the
// subscriber sets do not grow across reconnects.
func (sess *liveSession) close() {
	sess.closeOnce.Do(func() {
		close(sess.done)

		sess.watchersMu.Lock()
		for _, w := range sess.watchers {
			w.Dispose()
			middleware.WatchRemoved()
		}
		sess.watchers = nil
		sess.watchersMu.Unlock()

		sess.conn.Close()
	})
}

// readLoop processes client frames until the connection drops.
func (sess *liveSession) readLoop() {
	defer sess.close()

	cfg := sess.server.config
	sess.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	for {
		_, msg, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				sess.server.logger.Error("live read error", "error", err)
			}
			return
		}

		var cm clientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			sess.push(serverMessage{Type: "error", Error: "invalid frame"})
			continue
		}

		switch cm.Op {
		case "watch":
			sess.handleWatch(cm.Path)
		case "unwatch":
			sess.handleUnwatch(cm.Path)
		case "set":
			sess.handleSet(cm.Path, cm.Value)
		default:
			sess.push(serverMessage{Type: "error", Path: cm.Path, Error: "unknown op"})
		}
	}
}

// writeLoop drains the send buffer and keeps the connection alive.
func (sess *liveSession) writeLoop() {
	cfg := sess.server.config
	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()
	defer sess.close()

	for {
		select {
		case <-sess.done:
			return

		case msg := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := sess.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ping.C:
			sess.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push queues a frame, dropping it when the client cannot keep up.
func (sess *liveSession) push(msg serverMessage) {
	select {
	case sess.send <- msg:
	case <-sess.done:
	default:
		sess.server.logger.Warn("live client lagging, dropping frame",
			"path", msg.Path, "type", msg.Type)
	}
}

// handleWatch creates a live binding: the watcher pushes every change
// of the path to the client. The initial value is pushed immediately
// so the client renders without a read round trip.
func (sess *liveSession) handleWatch(path string) {
	sess.watchersMu.Lock()
	if _, exists := sess.watchers[path]; exists {
		sess.watchersMu.Unlock()
		return
	}
	sess.watchersMu.Unlock()

	w, err := sess.server.model.Watch(path, func(v any) {
		sess.push(serverMessage{Type: "update", Path: path, Value: v})
	})
	if err != nil {
		sess.push(serverMessage{Type: "error", Path: path, Error: err.Error()})
		return
	}

	sess.watchersMu.Lock()
	if sess.watchers == nil {
		// Session closed while the watcher was being built.
		sess.watchersMu.Unlock()
		w.Dispose()
		return
	}
	sess.watchers[path] = w
	sess.watchersMu.Unlock()
	middleware.WatchAdded()

	v, err := sess.server.model.Get(path)
	if err == nil {
		sess.push(serverMessage{Type: "update", Path: path, Value: v})
	}
}

// handleUnwatch disposes one binding.
func (sess *liveSession) handleUnwatch(path string) {
	sess.watchersMu.Lock()
	w, ok := sess.watchers[path]
	if ok {
		delete(sess.watchers, path)
	}
	sess.watchersMu.Unlock()

	if ok {
		w.Dispose()
		middleware.WatchRemoved()
	}
}

// handleSet pushes a client-originated write through the tracked
// accessor; all subscribed watchers (this session's included) are
// notified before the write returns.
func (sess *liveSession) handleSet(path string, v any) {
	if err := sess.server.model.Set(path, v); err != nil {
		sess.push(serverMessage{Type: "error", Path: path, Error: err.Error()})
	}
}
