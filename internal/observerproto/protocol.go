package observerproto

// Version is the observer protocol version (separate from the player WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can
// be re-sent to update the filter.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Player          string   `json:"player,omitempty"`       // only events involving this player id
	Kinds           []string `json:"kinds,omitempty"`        // only these event kinds
	SpacePrefix     string   `json:"space_prefix,omitempty"` // only spaces under this chunk id prefix
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Seed            string `json:"seed"`
	Players         int    `json:"players"`
	Chunks          int    `json:"chunks"`
	Spaces          int    `json:"spaces"`
}

// Server -> Client. One world event, as it happens.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TimeUnix        int64  `json:"time_unix"`
	Kind            string `json:"kind"`
	SpaceID         string `json:"space_id,omitempty"`
	Player          string `json:"player,omitempty"`
	Exit            string `json:"exit,omitempty"`
	Detail          string `json:"detail,omitempty"`
}
