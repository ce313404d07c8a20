package protocol

// EVENT (server -> client): something happened in a space the player
// currently occupies. Pushed without a request, so no req_id.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Kind            string `json:"kind"` // "join", "leave", "move"
	SpaceID         string `json:"space_id"`
	Player          string `json:"player,omitempty"`
	Exit            string `json:"exit,omitempty"`
	Detail          string `json:"detail,omitempty"`
}
