package protocol

// ViewPayload is a space as one player perceives it: hidden exits
// their perception missed are absent, and their own presence tag is
// filtered out of the occupant list.
type ViewPayload struct {
	SpaceID     string        `json:"space_id"`
	Description string        `json:"description"`
	Brightness  int           `json:"brightness"` // 0..100
	Terrain     string        `json:"terrain"`
	SafeZone    bool          `json:"safe_zone,omitempty"`
	Exits       []ExitPayload `json:"exits"`
	Hazards     []string      `json:"hazards,omitempty"`
	Occupants   []string      `json:"occupants,omitempty"`
	Items       []string      `json:"items,omitempty"`
}

type ExitPayload struct {
	Label    string `json:"label"`
	Hidden   bool   `json:"hidden,omitempty"`
	Resolved bool   `json:"resolved"`
}

// SpacePayload is the unfiltered record of a space, the shape
// SPACE_GET returns. Unlike ViewPayload it exposes placeholders,
// hidden-exit difficulties and traversal conditions.
type SpacePayload struct {
	SpaceID      string              `json:"space_id"`
	Role         string              `json:"role"`
	Description  string              `json:"description,omitempty"`
	Brightness   int                 `json:"brightness"`
	Terrain      string              `json:"terrain"`
	SafeZone     bool                `json:"safe_zone,omitempty"`
	Filled       bool                `json:"filled"`
	Exits        []ExitDetailPayload `json:"exits"`
	Hazards      []string            `json:"hazards,omitempty"`
	Resources    []ResourcePayload   `json:"resources,omitempty"`
	Occupants    []string            `json:"occupants,omitempty"`
	DroppedItems []string            `json:"dropped_items,omitempty"`
	Flags        map[string]bool     `json:"flags,omitempty"`
}

// ExitDetailPayload carries exactly one of Target or Placeholder, the
// same exclusivity the world model keeps.
type ExitDetailPayload struct {
	Label       string   `json:"label"`
	Target      string   `json:"target,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Hidden      bool     `json:"hidden,omitempty"`
	HiddenDC    int      `json:"hidden_dc,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
}

type ResourcePayload struct {
	Kind string `json:"kind"`
	Qty  int    `json:"qty"`
}
