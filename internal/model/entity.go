package model

// EntityType classifies a conversation participant.
type EntityType string

const (
	EntityContact EntityType = "contact"
	EntityRoom    EntityType = "room"
	EntitySelf    EntityType = "self"
	EntityUnknown EntityType = "unknown"
)

// Entity identifies a participant or conversation target. Values are
// constructed once and never mutated; identity is (Type, Identifier).
type Entity struct {
	Type        EntityType
	Identifier  string
	Alias       string
	AvatarToken string
}

// NewContact returns a contact entity. Alias falls back to the identifier.
func NewContact(identifier, alias, avatarToken string) Entity {
	return newEntity(EntityContact, identifier, alias, avatarToken)
}

// NewRoom returns a chatroom entity.
func NewRoom(identifier string) Entity {
	return newEntity(EntityRoom, identifier, identifier, "")
}

// NewSelf returns an entity representing the local user of an account.
func NewSelf(identifier, alias string) Entity {
	return newEntity(EntitySelf, identifier, alias, "")
}

func newEntity(typ EntityType, identifier, alias, avatarToken string) Entity {
	if alias == "" {
		alias = identifier
	}
	return Entity{
		Type:        typ,
		Identifier:  identifier,
		Alias:       alias,
		AvatarToken: avatarToken,
	}
}

// Same reports whether two entities denote the same participant.
// Alias and avatar token are presentation data and do not participate.
func (e Entity) Same(other Entity) bool {
	return e.Type == other.Type && e.Identifier == other.Identifier
}
