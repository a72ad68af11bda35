package controllers

import (
	"io"
	"net/http"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/services"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxImageBytes = 10 << 20

// ResearchGroupController serves the group and membership endpoints.
type ResearchGroupController struct {
	groups *services.GroupService
	log    *logrus.Logger
}

func NewResearchGroupController(groups *services.GroupService, log *logrus.Logger) *ResearchGroupController {
	return &ResearchGroupController{groups: groups, log: log}
}

// HandleCreateGroup - POST /
func (c *ResearchGroupController) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var input services.CreateGroupInput
	if err := decodeJSON(r, &input); err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	group, err := c.groups.CreateGroup(r.Context(), actor(r), input)
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusCreated, group)
}

// HandleListGroups - GET /
func (c *ResearchGroupController) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := c.groups.ListGroups(r.Context(), actor(r))
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	if groups == nil {
		groups = []models.GroupView{}
	}
	WriteJSONResponse(w, http.StatusOK, groups)
}

// HandleGetGroup - GET /{groupId}
func (c *ResearchGroupController) HandleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := c.groups.GetGroup(r.Context(), actor(r), mux.Vars(r)["groupId"])
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, group)
}

// HandleUpdateGroup - PUT /{groupId}
func (c *ResearchGroupController) HandleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var patch models.GroupPatch
	if err := decodeJSON(r, &patch); err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	group, err := c.groups.UpdateGroup(r.Context(), actor(r), mux.Vars(r)["groupId"], patch)
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, group)
}

// HandleChangeRole - PUT /{groupId}/members/{userId}/role?role=admin|member
func (c *ResearchGroupController) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role := models.GroupRole(r.URL.Query().Get("role"))
	group, err := c.groups.ChangeMemberRole(r.Context(), actor(r), vars["groupId"], vars["userId"], role)
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, group)
}

// HandleRemoveMember - DELETE /{groupId}/members/{userId}
func (c *ResearchGroupController) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	group, err := c.groups.RemoveMember(r.Context(), actor(r), vars["groupId"], vars["userId"])
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, group)
}

// HandleReplaceImage - PUT /{groupId}/image (multipart field "file")
func (c *ResearchGroupController) HandleReplaceImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		WriteError(w, r, c.log, apperrors.InvalidInput("expected a multipart form with a file"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, r, c.log, apperrors.InvalidInput("missing file"))
		return
	}
	defer file.Close()

	// The declared part type is not trusted; the stored content type comes from the bytes.
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		WriteError(w, r, c.log, apperrors.InvalidInput("unreadable file"))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		WriteError(w, r, c.log, apperrors.Internal("failed to read upload", err))
		return
	}

	group, err := c.groups.ReplaceGroupImage(r.Context(), actor(r), mux.Vars(r)["groupId"],
		header.Filename, detected.String(), file, header.Size)
	if err != nil {
		WriteError(w, r, c.log, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, group)
}
