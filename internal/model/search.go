package model

// HitType classifies what kind of conversation a search hit points into.
type HitType string

const (
	HitText     HitType = "text"
	HitTextRoom HitType = "text-room"
	HitCall     HitType = "call"
	HitAny      HitType = "any"
)

// SearchHit points at one conversation day matching a search query.
// Hit identity is (ID, Type) only: two hits for the same conversation
// under different accounts compare equal, so account is advisory.
type SearchHit struct {
	Account string
	ID      string
	Type    HitType
	Date    Date
}

// Same reports whether two hits denote the same conversation day.
func (h SearchHit) Same(other SearchHit) bool {
	return h.ID == other.ID && h.Type == other.Type
}
