package socket

import (
	"encoding/json"
	"sort"
	"sync"

	"labchat_server/models"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Peer is one live connection as seen by the hub.
type Peer interface {
	ID() string
	UserID() string
	GroupID() string
	// Enqueue hands payload to the peer's writer without blocking. It reports false when the
	// peer is closed or its queue is full.
	Enqueue(payload []byte) bool
	Close()
}

// Hub tracks the live connections of every group and fans frames out to them. A slow or dead
// peer never blocks delivery to the others.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]Peer
	// statusMu orders registry changes with the status frames announcing them, so the last
	// status a peer receives always matches the registry.
	statusMu sync.Mutex
	metrics  *Metrics
	log      *logrus.Logger
}

func NewHub(metrics *Metrics, log *logrus.Logger) *Hub {
	return &Hub{
		groups:  make(map[string]map[string]Peer),
		metrics: metrics,
		log:     log,
	}
}

// Connect registers p under its group and announces the new online set.
func (h *Hub) Connect(p Peer) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()

	h.mu.Lock()
	peers, ok := h.groups[p.GroupID()]
	if !ok {
		peers = make(map[string]Peer)
		h.groups[p.GroupID()] = peers
	}
	_, existed := peers[p.ID()]
	peers[p.ID()] = p
	h.mu.Unlock()

	if !existed {
		h.metrics.Connections.Inc()
	}
	h.log.WithFields(logrus.Fields{"groupId": p.GroupID(), "userId": p.UserID(), "connId": p.ID()}).Info("peer connected")
	h.broadcastStatus(p.GroupID())
}

// Disconnect removes exactly p. Calling it again for the same peer does nothing.
func (h *Hub) Disconnect(p Peer) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()

	h.mu.Lock()
	peers, ok := h.groups[p.GroupID()]
	if ok {
		_, ok = peers[p.ID()]
	}
	if ok {
		delete(peers, p.ID())
		if len(peers) == 0 {
			delete(h.groups, p.GroupID())
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.metrics.Connections.Dec()
	h.log.WithFields(logrus.Fields{"groupId": p.GroupID(), "userId": p.UserID(), "connId": p.ID()}).Info("peer disconnected")
	h.broadcastStatus(p.GroupID())
}

// Broadcast delivers payload to every peer of groupID registered at call time and returns how
// many accepted it.
func (h *Hub) Broadcast(groupID string, payload []byte) int {
	delivered := 0
	for _, p := range h.snapshot(groupID) {
		if p.Enqueue(payload) {
			delivered++
			continue
		}
		h.metrics.Dropped.Inc()
		h.log.WithFields(logrus.Fields{"groupId": groupID, "userId": p.UserID(), "connId": p.ID()}).Warn("dropping frame for slow or closed peer")
	}
	return delivered
}

// BroadcastEnvelope encodes env once and fans it out.
func (h *Hub) BroadcastEnvelope(groupID string, env models.Envelope) int {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).WithField("groupId", groupID).Error("failed to encode envelope")
		return 0
	}
	h.metrics.Broadcasts.WithLabelValues(env.Type).Inc()
	return h.Broadcast(groupID, payload)
}

// BroadcastStatus sends the current online set of groupID to its peers.
func (h *Hub) BroadcastStatus(groupID string) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	h.broadcastStatus(groupID)
}

// broadcastStatus snapshots and fans out the online set. The caller holds statusMu; Enqueue never
// blocks, so holding it across the fan-out is safe.
func (h *Hub) broadcastStatus(groupID string) {
	h.BroadcastEnvelope(groupID, models.StatusEnvelope(h.OnlineUsers(groupID)))
}

// OnlineUsers returns the sorted ids of users with at least one live connection in groupID.
func (h *Hub) OnlineUsers(groupID string) []string {
	users := lo.Uniq(lo.Map(h.snapshot(groupID), func(p Peer, _ int) string { return p.UserID() }))
	sort.Strings(users)
	return users
}

// CloseAll closes every registered peer. Their handlers deregister them as they wind down.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var peers []Peer
	for _, group := range h.groups {
		peers = append(peers, lo.Values(group)...)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.Close()
	}
}

func (h *Hub) snapshot(groupID string) []Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Values(h.groups[groupID])
}
