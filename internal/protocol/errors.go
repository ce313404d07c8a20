package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownPlayer = "E_UNKNOWN_PLAYER"
	ErrNotFound      = "E_NOT_FOUND"

	// World layer.
	ErrUnresolvedExit = "E_UNRESOLVED_EXIT"
	ErrBlocked        = "E_BLOCKED"
	ErrGeneration     = "E_GENERATION_EXHAUSTED"
	ErrValidation     = "E_VALIDATION_FAILURE"
	ErrOracle         = "E_ORACLE_UNAVAILABLE"
	ErrPersistence    = "E_PERSISTENCE_FAILURE"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownPlayer:   {},
	ErrNotFound:        {},
	ErrUnresolvedExit:  {},
	ErrBlocked:         {},
	ErrGeneration:      {},
	ErrValidation:      {},
	ErrOracle:          {},
	ErrPersistence:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
