package core

// Identity is the verified user behind a session, as returned by the
// credential verifier.
type Identity struct {
	UserID   string
	Username string
	Avatar   string
	Persona  string
	Roles    []string
}

// HasRole reports whether the identity carries the given global role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Client is a live session bound to a verified identity. It is owned
// exclusively by the hub and never persisted.
type Client struct {
	ID       string
	Identity Identity
	Commands chan *Command
	Events   chan *Event
	// Channels is the set of channel ids the session is joined to. Mutated
	// only from the hub run loop.
	Channels map[string]struct{}
	// done is closed by the hub when the session is dropped, releasing the
	// command pump even though Commands stays open.
	done chan struct{}
}

// NewClient constructs a session with initialized channels.
func NewClient(id string, ident Identity) *Client {
	if ident.Username == "" {
		ident.Username = ident.UserID
	}
	return &Client{
		ID:       id,
		Identity: ident,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
		Channels: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}
