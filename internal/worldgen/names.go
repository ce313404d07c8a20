package worldgen

import "fmt"

// Word tables for deterministic generation. Kept small on purpose:
// variety comes from combining them with per-chunk seeds, and the
// oracle overrides them whenever it is reachable.

var biomes = []string{
	"caverns", "ruins", "fungal forest", "flooded halls",
	"crystal fields", "ashen warrens", "root tangle", "frozen gallery",
}

var biomeAdjectives = []string{
	"sunken", "forgotten", "whispering", "shattered",
	"pale", "echoing", "overgrown", "smoldering",
}

// Directional hints skew a child's character relative to its parent.
var hintFlavor = map[string]string{
	"north":     "colder and harsher",
	"south":     "warmer and wilder",
	"east":      "older and stranger",
	"west":      "younger and rawer",
	"northeast": "colder and stranger",
	"northwest": "colder and rawer",
	"southeast": "warmer and stranger",
	"southwest": "warmer and rawer",
	"up":        "thinner and brighter",
	"down":      "deeper and darker",
}

// Per-role descriptive registers for content fill.
var roleRegister = map[string]string{
	"HUB":       "gathering point",
	"LINEAR":    "passage",
	"BRANCHING": "junction",
	"DEAD_END":  "dead-end chamber",
	"BOSS":      "lair",
	"FRONTIER":  "unexplored edge",
	"QUESTABLE": "curious site",
}

var gateSkills = []string{"climbing", "perception", "strength"}

var gateItems = []string{"rope", "lantern", "iron key", "pickaxe"}

var hazardsByRole = map[string][]string{
	"BOSS":     {"lurking presence", "old bloodstains"},
	"FRONTIER": {"unstable ground", "cold draft"},
	"DEAD_END": {"loose rubble"},
}

var resourcesByBiome = map[string][]string{
	"caverns":        {"iron vein", "glowcap cluster"},
	"ruins":          {"cut stone", "old timbers"},
	"fungal forest":  {"spore pods", "tangled fiber"},
	"flooded halls":  {"reed bundle", "silt pearl"},
	"crystal fields": {"crystal shard", "resonant dust"},
	"ashen warrens":  {"cinder lump", "bone char"},
	"root tangle":    {"sap knot", "bark sheet"},
	"frozen gallery": {"clearwater ice", "frost lichen"},
}

// Descriptive exit label pairs used when compass labels collide. The
// two sides of a pair are each other's inverse.
var labelPairs = [][2]string{
	{"up", "down"},
	{"arch", "tunnel"},
	{"stair", "chute"},
	{"ledge", "crawl"},
	{"gap", "squeeze"},
	{"bridge", "ford"},
	{"gate", "breach"},
	{"ramp", "drop"},
}

// nextLabelPair returns the first pair free on both endpoints,
// numbering past the table if a node is extraordinarily connected.
// Terminates because numbered labels are unique per k and each miss
// needs a distinct already-used label.
func nextLabelPair(usedA, usedB map[string]bool) (string, string) {
	for k := 0; ; k++ {
		var la, lb string
		if k < len(labelPairs) {
			la, lb = labelPairs[k][0], labelPairs[k][1]
		} else {
			la = fmt.Sprintf("passage %d", k-len(labelPairs)+2)
			lb = fmt.Sprintf("passage %d back", k-len(labelPairs)+2)
		}
		if !usedA[la] && !usedB[lb] {
			return la, lb
		}
	}
}
