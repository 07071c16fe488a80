package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/DanilaP/social-network-backend/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const wsReadLimit = 512

// serveWS authenticates the connection with the same token mechanism as
// HTTP, upgrades it and registers the resulting push channel. The channel
// is push only: the read loop exists solely to notice the close.
func (a *API) serveWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie(tokenCookie); err == nil {
			token = cookie.Value
		}
	}
	userID, err := a.Identity.Resolve(token)
	if err != nil {
		a.respondError(w, http.StatusUnauthorized, err, "Not authenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		a.Logger.Error("Could not upgrade connection", "error", err.Error())
		return
	}

	ch := realtime.NewWebsocketChannel(conn, realtime.DefaultWriteTimeout)
	a.Registry.Register(userID, ch)
	a.Logger.Info("Channel registered", "user_id", userID)

	go a.readLoop(userID, conn, ch)
}

func (a *API) readLoop(userID string, conn *websocket.Conn, ch realtime.Channel) {
	defer func() {
		a.Registry.Unregister(ch)
		_ = conn.Close()
		a.Logger.Info("Channel unregistered", "user_id", userID)
	}()

	conn.SetReadLimit(wsReadLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
