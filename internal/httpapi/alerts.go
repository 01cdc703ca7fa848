package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
)

// handleAlertStream pushes violation and vehicle alerts to a console. The
// default is one JSON text frame per event; ?format=proto switches to
// binary google.protobuf.Struct frames.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "alert stream disabled", nil)
		return
	}
	binary := r.URL.Query().Get("format") == "proto"

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: wsOriginPatterns(s.allowedOrigins),
	})
	if err != nil {
		s.logger.Warn("alert stream upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	obs := broadcast.NewChannelObserver(s.alertBuffer)
	if err := s.hub.Subscribe(obs); err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer s.hub.Unsubscribe(obs)

	// Consoles never send; CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	ready, err := broadcast.NewFrame(broadcast.NewEvent(broadcast.TypeReady, time.Now(), nil))
	if err == nil {
		err = s.writeFrame(ctx, conn, ready, binary)
	}
	if err != nil {
		return
	}
	s.logger.Debug("alert subscriber connected", "remote", r.RemoteAddr, "proto", binary)

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-obs.C():
			if !ok {
				// Dropped by the hub for falling behind, or the hub closed.
				_ = conn.Close(websocket.StatusTryAgainLater, "alert stream closed")
				return
			}
			if err := s.writeFrame(ctx, conn, f, binary); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("alert write failed", "remote", r.RemoteAddr, "error", err)
				}
				return
			}
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, f *broadcast.Frame, binary bool) error {
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if !binary {
		return conn.Write(wctx, websocket.MessageText, f.JSON())
	}
	b, err := f.Proto()
	if err != nil {
		return err
	}
	return conn.Write(wctx, websocket.MessageBinary, b)
}

// wsOriginPatterns turns configured origins into the host patterns the
// websocket library matches against. Empty means same-origin only.
func wsOriginPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "" {
			continue
		}
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
