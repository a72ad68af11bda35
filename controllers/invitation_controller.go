package controllers

import (
	"net/http"

	"labchat_server/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// InvitationController serves invitation creation, listing and redemption.
type InvitationController struct {
	invites *services.InviteService
	log     *logrus.Logger
}

func NewInvitationController(invites *services.InviteService, log *logrus.Logger) *InvitationController {
	return &InvitationController{invites: invites, log: log}
}

// HandleInvite - POST /{groupId}/invite?email=
func (c *InvitationController) HandleInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := c.invites.CreateInvitation(r.Context(), actor(r), mux.Vars(r)["groupId"], r.URL.Query().Get("email"))
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusCreated, inv)
}

// HandleListInvitations - GET /{groupId}/invitations
func (c *InvitationController) HandleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := c.invites.ListInvitations(r.Context(), actor(r), mux.Vars(r)["groupId"])
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, invitations)
}

// HandleJoin - POST /join/{token}
func (c *InvitationController) HandleJoin(w http.ResponseWriter, r *http.Request) {
	group, err := c.invites.RedeemInvitation(r.Context(), actor(r), mux.Vars(r)["token"])
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, group)
}

// HandleDecline - POST /join/{token}/decline
func (c *InvitationController) HandleDecline(w http.ResponseWriter, r *http.Request) {
	inv, err := c.invites.DeclineInvitation(r.Context(), actor(r), mux.Vars(r)["token"])
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, inv)
}
