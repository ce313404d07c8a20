package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	moveSchema := compile("move.schema.json")
	viewSchema := compile("view.schema.json")
	moveResultSchema := compile("move_result.schema.json")
	spaceSchema := compile("space.schema.json")
	ackSchema := compile("ack.schema.json")
	eventSchema := compile("event.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "player_name":"wanderer",
	  "perception":14,
	  "skills":{"climbing":12},
	  "items":["rope"],
	  "auth":{"resume_token":"player:7f3c"}
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "player_id":"7f3c",
	  "resume_token":"player:7f3c",
	  "world_id":"w1",
	  "lore":"The deep remembers.",
	  "view":{
	    "space_id":"w1.r0_0.z0_0.s0_0.p0",
	    "description":"A low vaulted chamber, walls slick with mineral sheen.",
	    "brightness":40,
	    "terrain":"NORMAL",
	    "exits":[
	      {"label":"north","resolved":true},
	      {"label":"crevice behind the cairn","hidden":true,"resolved":true}
	    ],
	    "occupants":["player:old-hand"]
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var move any
	_ = json.Unmarshal([]byte(`{
	  "type":"MOVE",
	  "protocol_version":"1.0",
	  "req_id":"R1",
	  "intent":"squeeze through the crevice"
	}`), &move)
	validate(moveSchema, move)

	var view any
	_ = json.Unmarshal([]byte(`{
	  "type":"VIEW",
	  "protocol_version":"1.0",
	  "req_id":"R2",
	  "view":{
	    "space_id":"w1.r0_0.z0_0.s0_0.p3",
	    "description":"Roots thick as masts pierce the ceiling.",
	    "brightness":15,
	    "terrain":"DIFFICULT",
	    "exits":[{"label":"south","resolved":true}],
	    "hazards":["unstable footing"]
	  }
	}`), &view)
	validate(viewSchema, view)

	var moveResult any
	_ = json.Unmarshal([]byte(`{
	  "type":"MOVE_RESULT",
	  "protocol_version":"1.0",
	  "req_id":"R3",
	  "from":"w1.r0_0.z0_0.s0_0.p0",
	  "to":"w1.r0_0.z0_0.s0_0.p3",
	  "exit":"north",
	  "view":{
	    "space_id":"w1.r0_0.z0_0.s0_0.p3",
	    "description":"Roots thick as masts pierce the ceiling.",
	    "brightness":15,
	    "terrain":"NORMAL",
	    "exits":[{"label":"south","resolved":true}]
	  }
	}`), &moveResult)
	validate(moveResultSchema, moveResult)

	var space any
	_ = json.Unmarshal([]byte(`{
	  "type":"SPACE",
	  "protocol_version":"1.0",
	  "req_id":"R4",
	  "space":{
	    "space_id":"w1.r0_0.z0_0.s0_0.p5",
	    "role":"BOSS",
	    "description":"The breeding warren.",
	    "brightness":5,
	    "terrain":"DIFFICULT",
	    "filled":true,
	    "exits":[
	      {"label":"west","target":"w1.r0_0.z0_0.s0_0.p2"},
	      {"label":"sunken stair","placeholder":"pending:w1.r0_0.z0_0.s1_0:south","hidden":true,"hidden_dc":22,
	       "conditions":["requires climbing"]}
	    ],
	    "resources":[{"kind":"glowmoss","qty":3}],
	    "flags":{"warren_cleared":false}
	  }
	}`), &space)
	validate(spaceSchema, space)

	// An exit naming both a target and a placeholder violates the
	// exclusivity the model guarantees.
	var badSpace any
	_ = json.Unmarshal([]byte(`{
	  "type":"SPACE",
	  "protocol_version":"1.0",
	  "req_id":"R5",
	  "space":{
	    "space_id":"w1.r0_0.z0_0.s0_0.p5",
	    "role":"LINEAR",
	    "brightness":50,
	    "terrain":"NORMAL",
	    "filled":false,
	    "exits":[{"label":"east","target":"w1.r0_0.z0_0.s0_0.p6","placeholder":"pending:x:1"}]
	  }
	}`), &badSpace)
	if err := spaceSchema.Validate(badSpace); err == nil {
		t.Fatalf("expected dual-target exit rejected")
	}

	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"1.0",
	  "ack_for":"R6",
	  "accepted":false,
	  "code":"E_BLOCKED",
	  "message":"requires climbing"
	}`), &ack)
	validate(ackSchema, ack)

	var event any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "kind":"move",
	  "space_id":"w1.r0_0.z0_0.s0_0.p3",
	  "player":"7f3c",
	  "exit":"north"
	}`), &event)
	validate(eventSchema, event)
}
