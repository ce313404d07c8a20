package world

// ConditionKind discriminates traversal conditions. The set is closed;
// eligibility checks switch exhaustively over it.
type ConditionKind uint8

const (
	CondSkillCheck ConditionKind = iota + 1
	CondItemRequired
)

// Condition gates traversal of an edge. Kind selects the meaningful
// fields: SkillCheck uses Skill+Threshold, ItemRequired uses Item.
type Condition struct {
	Kind      ConditionKind
	Skill     string
	Threshold int
	Item      string
}

func SkillCheck(skill string, threshold int) Condition {
	return Condition{Kind: CondSkillCheck, Skill: skill, Threshold: threshold}
}

func ItemRequired(item string) Condition {
	return Condition{Kind: CondItemRequired, Item: item}
}

func (c Condition) Describe() string {
	switch c.Kind {
	case CondSkillCheck:
		return "requires " + c.Skill
	case CondItemRequired:
		return "requires " + c.Item
	default:
		return "impassable"
	}
}
