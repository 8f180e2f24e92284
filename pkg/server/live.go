package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/params/pkg/protocol"
	"github.com/vango-dev/params/pkg/querystring"
	"github.com/vango-dev/params/pkg/session"
)

// liveConn is one live channel connection. Writes are serialized; the read
// loop and the heartbeat both write.
type liveConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newLiveConn(conn *websocket.Conn, writeTimeout time.Duration) *liveConn {
	return &liveConn{conn: conn, writeTimeout: writeTimeout}
}

// send writes v as a JSON text message.
func (c *liveConn) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *liveConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// close sends a close frame and closes the connection, once.
func (c *liveConn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(c.writeTimeout))
		c.writeMu.Unlock()
		c.conn.Close()
	})
}

func (c *liveConn) pingLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// handleLive upgrades to the live channel. Every render pass on the
// connection exports through a Navigator, so each query string rewrite
// reaches the browser as a url_replace message.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	var id string
	if c, err := r.Cookie(s.config.CookieName); err == nil {
		id = c.Value
	}
	sess, err := s.manager.GetOrCreate(r.Context(), id, s.clientIP(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var header http.Header
	if sess.ID != id {
		header = http.Header{"Set-Cookie": {s.sessionCookie(sess.ID).String()}}
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	lc := newLiveConn(conn, s.config.LiveWriteTimeout)
	if !s.trackLive(lc) {
		lc.send(protocol.NewFatalError(protocol.ErrSessionExpired, "server shutting down"))
		lc.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrackLive(lc)
	defer lc.close(websocket.CloseNormalClosure, "")

	stop := make(chan struct{})
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		lc.pingLoop(s.config.PingInterval, stop)
	}()
	defer func() {
		close(stop)
		<-pingDone
	}()

	s.serveLive(r, sess, lc)
}

// serveLive runs the initial render pass and then the read loop until the
// connection closes.
func (s *Server) serveLive(r *http.Request, sess *session.Session, lc *liveConn) {
	ctx := r.Context()
	conn := lc.conn
	logger := s.logger.With("session", sess.ID)

	conn.SetReadLimit(protocol.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.config.LiveReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.LiveReadTimeout))
		return nil
	})

	values, err := querystring.Parse(resumeQuery(r, sess))
	if err != nil {
		lc.send(protocol.NewFatalError(protocol.ErrInvalidMessage, err.Error()))
		return
	}

	// Only touched by render passes on this goroutine.
	var pending []*protocol.URLReplace
	nav := querystring.NewNavigator(values, func(m *protocol.URLReplace) {
		pending = append(pending, m)
	})
	flush := func() {
		for _, m := range pending {
			if err := lc.send(m); err != nil {
				logger.Debug("write failed", "error", err)
			}
			s.recordLive(string(m.Type), "out")
		}
		pending = pending[:0]
	}
	reject := func(em *protocol.ErrorMessage) {
		lc.send(em)
		s.recordLive(string(em.Type), "out")
	}

	if _, err := s.render(ctx, sess, nav, "connect", nil); err != nil {
		em := liveError(err)
		em.Fatal = true
		reject(em)
		return
	}
	flush()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				logger.Error("read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.LiveReadTimeout))

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			reject(protocol.NewError(protocol.ErrInvalidMessage, err.Error()))
			continue
		}
		s.recordLive(string(msg.Type), "in")

		var apply change
		switch msg.Type {
		case protocol.TypeChange:
			apply = setValue(msg.Key, msg.Value)
		case protocol.TypeExportAll:
			apply = setExportAll(msg.Value)
		}

		if _, err := s.render(ctx, sess, nav, string(msg.Type), apply); err != nil {
			em := liveError(err).WithKey(msg.Key)
			reject(em)
			if em.Fatal {
				return
			}
			continue
		}
		flush()
	}
}

func (s *Server) recordLive(msgType, direction string) {
	if s.config.Metrics != nil {
		s.config.Metrics.RecordLiveMessage(msgType, direction)
	}
}

// liveError maps a render error to a live channel error message.
func liveError(err error) *protocol.ErrorMessage {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return protocol.NewError(protocol.ErrConversion, err.Error())
	case http.StatusNotFound:
		return protocol.NewError(protocol.ErrNotFound, err.Error())
	case http.StatusServiceUnavailable:
		return protocol.NewFatalError(protocol.ErrSessionExpired, err.Error())
	}
	return protocol.NewError(protocol.ErrServerError, err.Error())
}
