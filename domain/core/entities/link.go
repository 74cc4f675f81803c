package entities

import (
	"fmt"
	"time"
)

// EntityType identifies a kind of business record that can take part in a link.
type EntityType string

const (
	EntityTypeTask           EntityType = "task"
	EntityTypeProject        EntityType = "project"
	EntityTypeContact        EntityType = "contact"
	EntityTypeInvoice        EntityType = "invoice"
	EntityTypeDocument       EntityType = "document"
	EntityTypeWikiPage       EntityType = "wiki_page"
	EntityTypeUser           EntityType = "user"
	EntityTypeOrganization   EntityType = "organization"
	EntityTypeProduct        EntityType = "product"
	EntityTypeCampaign       EntityType = "campaign"
	EntityTypeRoadmapItem    EntityType = "roadmap_item"
	EntityTypeLibraryDoc     EntityType = "library_doc"
	EntityTypeLibrarySection EntityType = "library_section"
	EntityTypeMessage        EntityType = "message"
	EntityTypeThread         EntityType = "thread"
	EntityTypeExpense        EntityType = "expense"
	EntityTypePayment        EntityType = "payment"
)

var entityTypes = []EntityType{
	EntityTypeTask, EntityTypeProject, EntityTypeContact, EntityTypeInvoice,
	EntityTypeDocument, EntityTypeWikiPage, EntityTypeUser, EntityTypeOrganization,
	EntityTypeProduct, EntityTypeCampaign, EntityTypeRoadmapItem, EntityTypeLibraryDoc,
	EntityTypeLibrarySection, EntityTypeMessage, EntityTypeThread, EntityTypeExpense,
	EntityTypePayment,
}

// AllEntityTypes returns every known entity type in declaration order.
func AllEntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	for _, known := range entityTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t EntityType) String() string { return string(t) }

// LinkKind is the semantic label of a link.
type LinkKind string

const (
	LinkKindParentOf         LinkKind = "parent_of"
	LinkKindChildOf          LinkKind = "child_of"
	LinkKindDependsOn        LinkKind = "depends_on"
	LinkKindBlocks           LinkKind = "blocks"
	LinkKindReferences       LinkKind = "references"
	LinkKindMentionedIn      LinkKind = "mentioned_in"
	LinkKindAttachedTo       LinkKind = "attached_to"
	LinkKindAssignedTo       LinkKind = "assigned_to"
	LinkKindOwnedBy          LinkKind = "owned_by"
	LinkKindCollaboratesWith LinkKind = "collaborates_with"
	LinkKindTriggers         LinkKind = "triggers"
	LinkKindCompletes        LinkKind = "completes"
	LinkKindRelates          LinkKind = "relates"
	LinkKindDuplicates       LinkKind = "duplicates"
)

var linkKinds = []LinkKind{
	LinkKindParentOf, LinkKindChildOf, LinkKindDependsOn, LinkKindBlocks,
	LinkKindReferences, LinkKindMentionedIn, LinkKindAttachedTo, LinkKindAssignedTo,
	LinkKindOwnedBy, LinkKindCollaboratesWith, LinkKindTriggers, LinkKindCompletes,
	LinkKindRelates, LinkKindDuplicates,
}

// AllLinkKinds returns every known link kind in declaration order.
func AllLinkKinds() []LinkKind {
	out := make([]LinkKind, len(linkKinds))
	copy(out, linkKinds)
	return out
}

// IsValid reports whether k is a known link kind.
func (k LinkKind) IsValid() bool {
	for _, known := range linkKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k LinkKind) String() string { return string(k) }

var dependencyKinds = []LinkKind{LinkKindDependsOn, LinkKindBlocks, LinkKindParentOf, LinkKindChildOf}

// IsDependencyClass reports whether links of this kind must remain acyclic.
// All dependency-class kinds share one directed graph, read in stored direction.
func (k LinkKind) IsDependencyClass() bool {
	switch k {
	case LinkKindDependsOn, LinkKindBlocks, LinkKindParentOf, LinkKindChildOf:
		return true
	default:
		return false
	}
}

// DependencyKinds returns the dependency-class kinds.
func DependencyKinds() []LinkKind {
	return append([]LinkKind(nil), dependencyKinds...)
}

// Direction selects which side of a link an entity query matches.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	return d == DirectionOutgoing || d == DirectionIncoming || d == DirectionBoth
}

// OrDefault returns d, or fallback when d is empty.
func (d Direction) OrDefault(fallback Direction) Direction {
	if d == "" {
		return fallback
	}
	return d
}

// EntityRef is a non-owning reference to an external business record.
type EntityRef struct {
	Type     EntityType `json:"type"`
	ID       string     `json:"id"`
	TenantID string     `json:"tenantId"`
}

// NewEntityRef builds a reference.
func NewEntityRef(entityType EntityType, id, tenantID string) EntityRef {
	return EntityRef{Type: entityType, ID: id, TenantID: tenantID}
}

// Key identifies the entity within a tenant.
func (r EntityRef) Key() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// SameEntity reports whether both refs point at the same (type, id).
func (r EntityRef) SameEntity(other EntityRef) bool {
	return r.Type == other.Type && r.ID == other.ID
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s/%s:%s", r.TenantID, r.Type, r.ID)
}

// EntityLink is the persisted relationship record.
type EntityLink struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenantId"`
	FromType  EntityType             `json:"fromType"`
	FromID    string                 `json:"fromId"`
	ToType    EntityType             `json:"toType"`
	ToID      string                 `json:"toId"`
	Kind      LinkKind               `json:"kind"`
	Note      string                 `json:"note,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Active    bool                   `json:"active"`
	CreatedBy string                 `json:"createdBy,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// NewEntityLink creates an active link between two entities.
func NewEntityLink(id string, from, to EntityRef, kind LinkKind, note string, metadata map[string]interface{}, createdBy string, now time.Time) *EntityLink {
	return &EntityLink{
		ID:        id,
		TenantID:  from.TenantID,
		FromType:  from.Type,
		FromID:    from.ID,
		ToType:    to.Type,
		ToID:      to.ID,
		Kind:      kind,
		Note:      note,
		Metadata:  copyMetadata(metadata),
		Active:    true,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// From returns the source endpoint.
func (l *EntityLink) From() EntityRef {
	return EntityRef{Type: l.FromType, ID: l.FromID, TenantID: l.TenantID}
}

// To returns the target endpoint.
func (l *EntityLink) To() EntityRef {
	return EntityRef{Type: l.ToType, ID: l.ToID, TenantID: l.TenantID}
}

// Touches reports whether ref is either endpoint of the link.
func (l *EntityLink) Touches(ref EntityRef) bool {
	return l.From().SameEntity(ref) || l.To().SameEntity(ref)
}

// Other returns the endpoint opposite to ref.
func (l *EntityLink) Other(ref EntityRef) EntityRef {
	if l.From().SameEntity(ref) {
		return l.To()
	}
	return l.From()
}

// Apply mutates the link with the non-nil fields of patch.
func (l *EntityLink) Apply(patch LinkPatch, now time.Time) {
	if patch.Kind != nil {
		l.Kind = *patch.Kind
	}
	if patch.Note != nil {
		l.Note = *patch.Note
	}
	if patch.Metadata != nil {
		l.Metadata = copyMetadata(patch.Metadata)
	}
	if patch.Active != nil {
		l.Active = *patch.Active
	}
	l.UpdatedAt = now
}

// Clone returns a deep copy of the link.
func (l *EntityLink) Clone() *EntityLink {
	if l == nil {
		return nil
	}
	c := *l
	c.Metadata = copyMetadata(l.Metadata)
	return &c
}

// LinkPatch carries the mutable fields of an update. Nil means unchanged.
type LinkPatch struct {
	Kind     *LinkKind              `json:"kind,omitempty"`
	Note     *string                `json:"note,omitempty" validate:"omitempty,max=2000"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Active   *bool                  `json:"active,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p LinkPatch) IsEmpty() bool {
	return p.Kind == nil && p.Note == nil && p.Metadata == nil && p.Active == nil
}

// EntitySummary is display data for one endpoint of a link.
type EntitySummary struct {
	ID     string     `json:"id"`
	Title  string     `json:"title,omitempty"`
	Type   EntityType `json:"type"`
	Status string     `json:"status,omitempty"`
	URL    string     `json:"url,omitempty"`
}

// EntityLinkWithDetails is a link annotated with endpoint display data.
type EntityLinkWithDetails struct {
	EntityLink
	FromEntity *EntitySummary `json:"fromEntity,omitempty"`
	ToEntity   *EntitySummary `json:"toEntity,omitempty"`
}

// WithMinimalDetails wraps a link using only type and id as display data.
func WithMinimalDetails(link *EntityLink) *EntityLinkWithDetails {
	return &EntityLinkWithDetails{
		EntityLink: *link.Clone(),
		FromEntity: &EntitySummary{ID: link.FromID, Type: link.FromType},
		ToEntity:   &EntitySummary{ID: link.ToID, Type: link.ToType},
	}
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// LinkRequest describes a link to be created.
type LinkRequest struct {
	From     EntityRef              `json:"from"`
	To       EntityRef              `json:"to"`
	Kind     LinkKind               `json:"kind"`
	Note     string                 `json:"note,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
