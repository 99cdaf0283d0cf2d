package signal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/gorilla/websocket"
)

func (c *Client) writePump(ws *websocket.Conn) {
	defer func() {
		_ = ws.Close()
	}()

	var ping <-chan time.Time
	if c.opts.PingPeriod > 0 {
		t := time.NewTicker(c.opts.PingPeriod)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case data, ok := <-c.send:
			if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ping:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Error().Err(err).Msg("writePump ping error")
				return
			}
		}
	}
}

func (c *Client) readPump(ws *websocket.Conn) {
	if c.opts.PingPeriod > 0 {
		wait := c.opts.PingPeriod * 10 / 9
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.shutdown(core.ErrChannelClosed) {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info().Msg("server closed the connection")
				} else {
					c.log.Error().Err(err).Msg("readPump read error")
				}
				c.emit(core.Event{Type: core.EventDisconnected, Err: errors.Join(core.ErrChannelClosed, err)})
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Error().Err(err).Msg("bad json")
		return
	}

	switch msg.Type {
	case typeResponse:
		c.resolve(msg.ID, msg.Data)
	case typePing:
		if err := c.write(typePong, msg.ID, nil); err != nil {
			c.log.Warn().Err(err).Msg("pong not sent")
		}
	case "":
		c.log.Warn().Msg("message without type")
	default:
		c.emit(core.Event{Type: msg.Type, Data: msg.Data})
	}
}
