package routes

import (
	"labchat_server/controllers"

	"github.com/gorilla/mux"
)

// ResearchGroupControllers groups the handlers mounted under /api/v1/research-groups.
type ResearchGroupControllers struct {
	Groups      *controllers.ResearchGroupController
	Invitations *controllers.InvitationController
	Chat        *controllers.GroupChatController
	Socket      *controllers.SocketController
}

// RegisterResearchGroupRoutes registers the research group API. The websocket route
// authenticates from its query string; everything else requires a bearer token.
func RegisterResearchGroupRoutes(r *mux.Router, c ResearchGroupControllers, auth mux.MiddlewareFunc) {
	api := r.PathPrefix("/api/v1/research-groups").Subrouter()
	api.HandleFunc("/{groupId}/ws", c.Socket.HandleGroupSocket).Methods("GET")

	protected := api.NewRoute().Subrouter()
	protected.Use(auth)

	protected.HandleFunc("", c.Groups.HandleCreateGroup).Methods("POST")
	protected.HandleFunc("/", c.Groups.HandleCreateGroup).Methods("POST")
	protected.HandleFunc("", c.Groups.HandleListGroups).Methods("GET")
	protected.HandleFunc("/", c.Groups.HandleListGroups).Methods("GET")

	// Fixed paths go before /{groupId} so they are not captured as ids.
	protected.HandleFunc("/unread", c.Chat.HandleTotalUnread).Methods("GET")
	protected.HandleFunc("/join/{token}", c.Invitations.HandleJoin).Methods("POST")
	protected.HandleFunc("/join/{token}/decline", c.Invitations.HandleDecline).Methods("POST")

	protected.HandleFunc("/{groupId}", c.Groups.HandleGetGroup).Methods("GET")
	protected.HandleFunc("/{groupId}", c.Groups.HandleUpdateGroup).Methods("PUT")
	protected.HandleFunc("/{groupId}/image", c.Groups.HandleReplaceImage).Methods("PUT")
	protected.HandleFunc("/{groupId}/members/{userId}/role", c.Groups.HandleChangeRole).Methods("PUT")
	protected.HandleFunc("/{groupId}/members/{userId}", c.Groups.HandleRemoveMember).Methods("DELETE")

	protected.HandleFunc("/{groupId}/invite", c.Invitations.HandleInvite).Methods("POST")
	protected.HandleFunc("/{groupId}/invitations", c.Invitations.HandleListInvitations).Methods("GET")

	protected.HandleFunc("/{groupId}/messages", c.Chat.HandleGetMessages).Methods("GET")
	protected.HandleFunc("/{groupId}/read", c.Chat.HandleMarkRead).Methods("POST")
	protected.HandleFunc("/{groupId}/unread", c.Chat.HandleUnreadCount).Methods("GET")
	protected.HandleFunc("/{groupId}/online", c.Chat.HandleOnline).Methods("GET")
}
