// Package world models the 2D grid environment that agents inhabit:
// positions, named locations, objects, per-agent schedules, and viewport
// rendering for the perception pipeline.
package world

import (
	"fmt"
	"sync"
	"time"
)

// Position is a tile position in the 2D grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Object is a world object occupying a tile.
type Object struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
	Symbol   string   `json:"symbol,omitempty"`
}

// Location is a named map area made of one or more tiles.
type Location struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Tiles map[Position]bool `json:"-"`
}

// Contains reports whether the location covers the given tile.
func (l *Location) Contains(p Position) bool {
	return l.Tiles[p]
}

// ScheduleEntry is a scheduled location intent for a time window.
type ScheduleEntry struct {
	Start      time.Time `json:"start_time"`
	End        time.Time `json:"end_time"`
	LocationID string    `json:"target_location_id"`
	Activity   string    `json:"activity"`
}

// AgentState is the current state of one agent within the world.
type AgentState struct {
	ID       string          `json:"agent_id"`
	Name     string          `json:"name"`
	Position Position        `json:"position"`
	Schedule []ScheduleEntry `json:"schedule,omitempty"`
}

// State is the container for all simulation entities in the grid. Mutating
// methods are safe for concurrent use; reads during a tick see a consistent
// snapshot under the lock.
type State struct {
	Width  int
	Height int

	mu        sync.RWMutex
	locations map[string]*Location
	objects   map[string]*Object
	agents    map[string]*AgentState
}

// NewState creates an empty world of the given dimensions.
func NewState(width, height int) *State {
	return &State{
		Width:     width,
		Height:    height,
		locations: make(map[string]*Location),
		objects:   make(map[string]*Object),
		agents:    make(map[string]*AgentState),
	}
}

// AddLocation registers a named area.
func (s *State) AddLocation(l *Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[l.ID] = l
}

// AddObject places an object in the world.
func (s *State) AddObject(o *Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[o.ID] = o
}

// AddAgent places an agent in the world.
func (s *State) AddAgent(a *AgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
}

// MoveAgent updates an agent's position.
func (s *State) MoveAgent(agentID string, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("unknown agent %q", agentID)
	}
	a.Position = p
	return nil
}

// Agent returns the state of the named agent.
func (s *State) Agent(agentID string) (*AgentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	return a, ok
}

// Agents returns all agent states.
func (s *State) Agents() []*AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AgentState, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

// LocationsAt returns the names of locations covering the given tile.
func (s *State) LocationsAt(p Position) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, l := range s.locations {
		if l.Contains(p) {
			names = append(names, l.Name)
		}
	}
	return names
}

// ObjectsInBounds returns objects within the inclusive rectangle.
func (s *State) ObjectsInBounds(minX, minY, maxX, maxY int) []*Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Object
	for _, o := range s.objects {
		if o.Position.X >= minX && o.Position.X <= maxX &&
			o.Position.Y >= minY && o.Position.Y <= maxY {
			out = append(out, o)
		}
	}
	return out
}

// AgentsInBounds returns agents within the inclusive rectangle.
func (s *State) AgentsInBounds(minX, minY, maxX, maxY int) []*AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*AgentState
	for _, a := range s.agents {
		if a.Position.X >= minX && a.Position.X <= maxX &&
			a.Position.Y >= minY && a.Position.Y <= maxY {
			out = append(out, a)
		}
	}
	return out
}
