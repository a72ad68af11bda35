package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/services"
	"labchat_server/socket"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const persistTimeout = 10 * time.Second

// SocketController upgrades group connections and runs their receive loop.
type SocketController struct {
	identities services.IdentityProvider
	chat       *services.GroupChatService
	hub        *socket.Hub
	cfg        socket.ClientConfig
	upgrader   websocket.Upgrader
	log        *logrus.Logger
}

func NewSocketController(
	identities services.IdentityProvider,
	chat *services.GroupChatService,
	hub *socket.Hub,
	cfg socket.ClientConfig,
	allowedOrigins []string,
	log *logrus.Logger,
) *SocketController {
	return &SocketController{
		identities: identities,
		chat:       chat,
		hub:        hub,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

// originChecker accepts requests without an Origin header (non-browser clients) and browser
// requests from the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	if lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// HandleGroupSocket - GET /{groupId}/ws?token=
func (c *SocketController) HandleGroupSocket(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.WithError(err).WithField("groupId", groupID).Debug("websocket upgrade failed")
		return
	}

	identity, err := c.identities.Authenticate(r.Context(), r.URL.Query().Get("token"))
	if err == nil {
		_, err = c.chat.AuthorizeConnection(r.Context(), identity, groupID)
	}
	if err != nil {
		c.log.WithError(err).WithField("groupId", groupID).Info("rejecting websocket connection")
		socket.RejectConnection(conn, apperrors.PublicMessage(err), c.cfg.WriteTimeout)
		return
	}

	client := socket.NewClient(conn, identity.UserID, groupID, c.cfg, c.log)
	go client.WritePump()
	c.hub.Connect(client)
	defer func() {
		c.hub.Disconnect(client)
		client.Close()
	}()

	client.ReadPump(func(raw []byte) {
		c.receive(client, identity, groupID, raw)
	})
}

// receive persists one inbound frame and broadcasts it. Failures are reported to the sender only.
func (c *SocketController) receive(client *socket.Client, identity models.Identity, groupID string, raw []byte) {
	frame, err := models.ParseInboundFrame(raw)
	if err != nil {
		client.SendEnvelope(models.ErrorEnvelope(apperrors.PublicMessage(err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	msg, err := c.chat.AppendMessage(ctx, identity, groupID, frame)
	if err != nil {
		message := apperrors.PublicMessage(err)
		if apperrors.KindOf(err) == apperrors.KindInternal {
			message = "failed to store message"
		}
		client.SendEnvelope(models.ErrorEnvelope(message))
		if errors.Is(err, apperrors.ErrForbidden) || errors.Is(err, apperrors.ErrNotFound) {
			client.Close()
		}
		return
	}
	c.hub.BroadcastEnvelope(groupID, models.MessageEnvelope(*msg))
}
