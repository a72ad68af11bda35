package controllers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"labchat_server/controllers"
	"labchat_server/logger"
	"labchat_server/mocks"
	"labchat_server/models"
	"labchat_server/repositories"
	"labchat_server/routes"
	"labchat_server/services"
	"labchat_server/socket"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testServer struct {
	srv        *httptest.Server
	store      *repositories.Store
	identities *services.IdentityService
	chat       *services.GroupChatService
	images     *mocks.MockObjectStore
	hub        *socket.Hub
}

var testUsers = []models.UserProfile{
	{UserID: "alice", Email: "alice@lab.org", FullName: "Alice", Role: models.SystemRoleResearcher, Active: true},
	{UserID: "bob", Email: "e@x.com", FullName: "Bob", Role: models.SystemRoleUser, Active: true},
	{UserID: "carol", Email: "carol@lab.org", FullName: "Carol", Role: models.SystemRoleUser, Active: true},
	{UserID: "root", Email: "root@lab.org", FullName: "Root", Role: models.SystemRoleAdmin, Active: true},
	{UserID: "gone", Email: "gone@lab.org", FullName: "Gone", Role: models.SystemRoleUser, Active: false},
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.Discard()
	store := repositories.NewBadgerStore(db, log)
	for _, p := range testUsers {
		require.NoError(t, store.Users.PutUser(t.Context(), p))
	}

	identities := services.NewIdentityService("test-secret", "labchat", store.Users, log)
	images := mocks.NewMockObjectStore(gomock.NewController(t))
	groups := services.NewGroupService(store.Groups, store.Users, images, log)
	invites := services.NewInviteService(store.Groups, store.Invitations, store.Users, groups,
		services.RoleWhitelist([]string{"admin", "researcher", "user"}, true), services.AnyRedeemer(), log)
	chat := services.NewGroupChatService(store.Groups, store.Messages, 50, 200, log)
	unread := services.NewUnreadService(store.Groups, store.Messages, log)

	registry := prometheus.NewRegistry()
	hub := socket.NewHub(socket.NewMetrics(registry), log)
	clientCfg := socket.ClientConfig{
		SendBuffer:      16,
		WriteTimeout:    time.Second,
		PongTimeout:     10 * time.Second,
		MaxMessageBytes: 1 << 16,
	}

	r := mux.NewRouter()
	routes.RegisterRoutes(r, registry)
	routes.RegisterResearchGroupRoutes(r, routes.ResearchGroupControllers{
		Groups:      controllers.NewResearchGroupController(groups, log),
		Invitations: controllers.NewInvitationController(invites, log),
		Chat:        controllers.NewGroupChatController(chat, unread, hub, log),
		Socket:      controllers.NewSocketController(identities, chat, hub, clientCfg, []string{"http://localhost:3000"}, log),
	}, controllers.AuthMiddleware(identities, log))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, identities: identities, chat: chat, images: images, hub: hub}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.identities.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request as userID (anonymous when empty) and returns the status and raw body.
func (s *testServer) do(t *testing.T, method, path, userID string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, s.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

const groupsPath = "/api/v1/research-groups"

// createGroup creates a group as alice and returns its id.
func (s *testServer) createGroup(t *testing.T) string {
	t.Helper()
	status, raw := s.do(t, http.MethodPost, groupsPath, "alice", map[string]string{"name": "Genomics", "topic": "sequencing"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	return decode[models.GroupView](t, raw).GroupID
}

// join invites email into groupID as alice and redeems the token as userID.
func (s *testServer) join(t *testing.T, groupID, userID, email string) models.GroupView {
	t.Helper()
	status, raw := s.do(t, http.MethodPost, groupsPath+"/"+groupID+"/invite?email="+email, "alice", nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	inv := decode[models.Invitation](t, raw)

	status, raw = s.do(t, http.MethodPost, groupsPath+"/join/"+inv.Token, userID, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	return decode[models.GroupView](t, raw)
}

func (s *testServer) wsURL(groupID, token string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + groupsPath + "/" + groupID + "/ws?token=" + token
}
