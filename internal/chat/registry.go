package chat

// Registry maps connections to display names. A connection is present only
// once it has picked a name, so Count is the number of named sessions.
type Registry struct {
	sessions map[ConnID]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[ConnID]string),
	}
}

// Register binds name to id, replacing any previous name for id.
// The caller is responsible for rejecting blank names.
func (r *Registry) Register(id ConnID, name string) {
	r.sessions[id] = name
}

// Remove deletes the session for id and returns the name it carried.
// Removing an unknown id is a no-op that reports ok == false.
func (r *Registry) Remove(id ConnID) (name string, ok bool) {
	name, ok = r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return name, ok
}

// Name returns the display name registered for id.
func (r *Registry) Name(id ConnID) (string, bool) {
	name, ok := r.sessions[id]
	return name, ok
}

// Count returns the number of named sessions.
func (r *Registry) Count() int {
	return len(r.sessions)
}
