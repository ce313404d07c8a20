package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	PlayerName      string         `json:"player_name"`
	Perception      int            `json:"perception,omitempty"`
	Skills          map[string]int `json:"skills,omitempty"`
	Items           []string       `json:"items,omitempty"`
	Auth            *HelloAuth     `json:"auth,omitempty"`
}

type HelloAuth struct {
	// ResumeToken re-attaches a previous player identity. Empty means
	// a fresh join under a server-assigned id.
	ResumeToken string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	PlayerID        string      `json:"player_id"`
	ResumeToken     string      `json:"resume_token"`
	WorldID         string      `json:"world_id"`
	Lore            string      `json:"lore,omitempty"`
	View            ViewPayload `json:"view"`
}

// LOOK (client -> server): re-render the player's current space.
type LookMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
}

// MOVE (client -> server): free-text movement intent.
type MoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Intent          string `json:"intent"`
}

// RESOLVE (client -> server): name the exit an intent would take,
// without moving.
type ResolveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Intent          string `json:"intent"`
}

// SPACE_GET (client -> server): fetch the full record of one space.
type SpaceGetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	SpaceID         string `json:"space_id"`
}

// SPACE_FLAG (client -> server): set or clear a persistent flag.
type SpaceFlagMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	SpaceID         string `json:"space_id"`
	Flag            string `json:"flag"`
	Value           bool   `json:"value"`
}

// VIEW (server -> client)
type ViewMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ReqID           string      `json:"req_id"`
	View            ViewPayload `json:"view"`
}

// MOVE_RESULT (server -> client)
type MoveResultMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ReqID           string      `json:"req_id"`
	From            string      `json:"from"`
	To              string      `json:"to"`
	Exit            string      `json:"exit"`
	View            ViewPayload `json:"view"`
}

// RESOLVE_RESULT (server -> client)
type ResolveResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Exit            string `json:"exit"`
}

// SPACE (server -> client)
type SpaceMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ReqID           string       `json:"req_id"`
	Space           SpacePayload `json:"space"`
}

// ACK (server -> client): accepts or rejects any request. Every
// rejection carries a known error code; the connection stays up.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}
