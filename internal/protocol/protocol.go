package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"

	TypeLook      = "LOOK"
	TypeMove      = "MOVE"
	TypeResolve   = "RESOLVE"
	TypeSpaceGet  = "SPACE_GET"
	TypeSpaceFlag = "SPACE_FLAG"

	TypeView        = "VIEW"
	TypeMoveResult  = "MOVE_RESULT"
	TypeResolveExit = "RESOLVE_RESULT"
	TypeSpace       = "SPACE"
	TypeAck         = "ACK"
	TypeEvent       = "EVENT"
)

// BaseMessage lets us route unknown JSON messages by type. ReqID is
// carried here so a request that fails full decoding can still be
// nacked with its correlation id.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
