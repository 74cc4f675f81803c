package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// LinkID is a value object representing a unique link identifier.
// New identifiers are time-ordered UUIDs so storage keys sort by creation.
type LinkID struct {
	value string
}

// NewLinkID creates a new LinkID.
func NewLinkID() LinkID {
	id, err := uuid.NewV7()
	if err != nil {
		return LinkID{value: uuid.New().String()}
	}
	return LinkID{value: id.String()}
}

// NewLinkIDFromString parses an existing identifier.
func NewLinkIDFromString(id string) (LinkID, error) {
	if id == "" {
		return LinkID{}, errors.New("link ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return LinkID{}, errors.New("link ID must be a valid UUID")
	}
	return LinkID{value: id}, nil
}

// IsValidLinkID reports whether s is a well-formed link identifier.
func IsValidLinkID(s string) bool {
	_, err := NewLinkIDFromString(s)
	return err == nil
}

func (id LinkID) String() string {
	return id.value
}

// Equals checks if two LinkIDs are equal
func (id LinkID) Equals(other LinkID) bool {
	return id.value == other.value
}

// IsZero checks if the LinkID is the zero value
func (id LinkID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id LinkID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *LinkID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("LinkID must be a string")
	}
	parsed, err := NewLinkIDFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
