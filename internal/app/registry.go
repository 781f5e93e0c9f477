package app

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"quizroom/internal/domain"
)

const registryShards = 16

// Registry tracks which connections are currently in a room. It is a
// liveness cache only: losing it on restart costs the online-count
// display, never game truth. Room codes are sharded so unrelated rooms
// never contend on a lock.
type Registry struct {
	shards [registryShards]*registryShard
	// conns indexes connectionID -> location for O(1) Leave.
	conns sync.Map
	clock func() time.Time
}

type registryShard struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	// players is keyed by playerID so a reconnect replaces the old
	// connection instead of duplicating the roster entry.
	players  map[string]domain.Participant
	hostConn string
	hostGen  int64
}

type connLocation struct {
	roomCode string
	playerID string // empty for the host connection
}

// Departure describes what Leave removed.
type Departure struct {
	RoomCode string
	PlayerID string
	WasHost  bool
}

func NewRegistry() *Registry {
	r := &Registry{clock: time.Now}
	for i := range r.shards {
		r.shards[i] = &registryShard{rooms: make(map[string]*roomEntry)}
	}
	return r
}

func (r *Registry) shard(roomCode string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(roomCode))
	return r.shards[h.Sum32()%registryShards]
}

// JoinAsPlayer upserts the player's live entry, keyed by playerID.
// A rejoin with a new connection id replaces the previous mapping.
// The returned roster is broadcast-worthy.
func (r *Registry) JoinAsPlayer(roomCode, connID, playerID, displayName, clubID string) []domain.Participant {
	s := r.shard(roomCode)
	s.mu.Lock()
	entry, ok := s.rooms[roomCode]
	if !ok {
		entry = &roomEntry{players: make(map[string]domain.Participant)}
		s.rooms[roomCode] = entry
	}
	if prev, ok := entry.players[playerID]; ok && prev.ConnectionID != connID {
		r.conns.Delete(prev.ConnectionID)
	}
	joinedAt := r.clock()
	if prev, ok := entry.players[playerID]; ok {
		joinedAt = prev.JoinedAt
	}
	entry.players[playerID] = domain.Participant{
		ConnectionID: connID,
		PlayerID:     playerID,
		DisplayName:  displayName,
		ClubID:       clubID,
		JoinedAt:     joinedAt,
	}
	roster := entry.rosterLocked()
	s.mu.Unlock()

	r.conns.Store(connID, connLocation{roomCode: roomCode, playerID: playerID})
	return roster
}

// JoinAsHost records connID as the sole authoritative host connection
// for the room and returns the new host generation. Any previous host
// connection is implicitly invalidated.
func (r *Registry) JoinAsHost(roomCode, connID string) int64 {
	s := r.shard(roomCode)
	s.mu.Lock()
	entry, ok := s.rooms[roomCode]
	if !ok {
		entry = &roomEntry{players: make(map[string]domain.Participant)}
		s.rooms[roomCode] = entry
	}
	if entry.hostConn != "" && entry.hostConn != connID {
		r.conns.Delete(entry.hostConn)
	}
	entry.hostConn = connID
	entry.hostGen++
	gen := entry.hostGen
	s.mu.Unlock()

	r.conns.Store(connID, connLocation{roomCode: roomCode})
	return gen
}

// IsCurrentHost reports whether connID at the given generation is the
// latest host connection for the room. Stale generations are rejected.
func (r *Registry) IsCurrentHost(roomCode, connID string, generation int64) bool {
	s := r.shard(roomCode)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[roomCode]
	return ok && entry.hostConn == connID && entry.hostGen == generation
}

// Leave removes the connection from whichever room and role it held.
// The second return is false when the connection was not registered
// (or was already superseded by a rejoin).
func (r *Registry) Leave(connID string) (Departure, bool) {
	v, ok := r.conns.LoadAndDelete(connID)
	if !ok {
		return Departure{}, false
	}
	loc := v.(connLocation)

	s := r.shard(loc.roomCode)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[loc.roomCode]
	if !ok {
		return Departure{}, false
	}

	if loc.playerID == "" {
		if entry.hostConn != connID {
			return Departure{}, false
		}
		entry.hostConn = ""
		if len(entry.players) == 0 {
			delete(s.rooms, loc.roomCode)
		}
		return Departure{RoomCode: loc.roomCode, WasHost: true}, true
	}

	p, ok := entry.players[loc.playerID]
	if !ok || p.ConnectionID != connID {
		return Departure{}, false
	}
	delete(entry.players, loc.playerID)
	if len(entry.players) == 0 && entry.hostConn == "" {
		delete(s.rooms, loc.roomCode)
	}
	return Departure{RoomCode: loc.roomCode, PlayerID: loc.playerID}, true
}

// Roster returns a joined-order snapshot of the room's live players.
func (r *Registry) Roster(roomCode string) []domain.Participant {
	s := r.shard(roomCode)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[roomCode]
	if !ok {
		return nil
	}
	return entry.rosterLocked()
}

// OnlineCount returns the number of live player connections in a room.
func (r *Registry) OnlineCount(roomCode string) int {
	s := r.shard(roomCode)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[roomCode]
	if !ok {
		return 0
	}
	return len(entry.players)
}

func (e *roomEntry) rosterLocked() []domain.Participant {
	roster := make([]domain.Participant, 0, len(e.players))
	for _, p := range e.players {
		roster = append(roster, p)
	}
	sort.Slice(roster, func(i, j int) bool {
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].PlayerID < roster[j].PlayerID
	})
	return roster
}
