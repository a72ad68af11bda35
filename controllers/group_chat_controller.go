package controllers

import (
	"net/http"
	"strconv"

	"labchat_server/apperrors"
	"labchat_server/services"
	"labchat_server/socket"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// GroupChatController serves history, read cursors and presence over REST.
type GroupChatController struct {
	chat   *services.GroupChatService
	unread *services.UnreadService
	hub    *socket.Hub
	log    *logrus.Logger
}

func NewGroupChatController(chat *services.GroupChatService, unread *services.UnreadService, hub *socket.Hub, log *logrus.Logger) *GroupChatController {
	return &GroupChatController{chat: chat, unread: unread, hub: hub, log: log}
}

// HandleGetMessages - GET /{groupId}/messages?limit=&before=
func (c *GroupChatController) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			WriteError(w, r, c.log, apperrors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	page, err := c.chat.ListMessages(r.Context(), actor(r), mux.Vars(r)["groupId"], query.Get("before"), limit)
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, page)
}

// HandleMarkRead - POST /{groupId}/read
func (c *GroupChatController) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := c.unread.MarkRead(r.Context(), actor(r), mux.Vars(r)["groupId"]); err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "success"})
}

// HandleUnreadCount - GET /{groupId}/unread
func (c *GroupChatController) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := c.unread.UnreadCount(r.Context(), actor(r), mux.Vars(r)["groupId"])
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]int{"unread": count})
}

// HandleTotalUnread - GET /unread
func (c *GroupChatController) HandleTotalUnread(w http.ResponseWriter, r *http.Request) {
	total, err := c.unread.TotalUnread(r.Context(), actor(r))
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]int{"unread": total})
}

// HandleOnline - GET /{groupId}/online
func (c *GroupChatController) HandleOnline(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	if _, err := c.chat.AuthorizeConnection(r.Context(), actor(r), groupID); err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	online := c.hub.OnlineUsers(groupID)
	if online == nil {
		online = []string{}
	}
	WriteJSONResponse(w, http.StatusOK, map[string][]string{"onlineUsers": online})
}
