package relay

import (
	"sort"
	"time"
)

// Room is a set of connected participants keyed by participant id.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	// Members maps participant ids to their connections.
	Members map[string]*Client

	// Created is when the first member joined.
	Created time.Time
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		Members: make(map[string]*Client),
		Created: time.Now(),
	}
}

// memberIDs returns the sorted ids of all members except skip.
func (r *Room) memberIDs(skip string) []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		if id != skip {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// others returns every member except the one with id skip.
func (r *Room) others(skip string) []*Client {
	clients := make([]*Client, 0, len(r.Members))
	for id, c := range r.Members {
		if id != skip {
			clients = append(clients, c)
		}
	}
	return clients
}

// Info snapshots the room.
func (r *Room) Info() RoomInfo {
	return RoomInfo{
		ID:      r.ID,
		Members: r.memberIDs(""),
		Created: r.Created,
	}
}
