package dynamodb

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"linkgraph/domain/core/entities"
	"linkgraph/pkg/utils"
)

// Single-table layout:
//
//	link:    PK=TENANT#<t>  SK=LINK#<id>
//	         GSI1PK=TENANT#<t>#FROM#<type>#<id>  GSI1SK=KIND#<kind>#LINK#<id>
//	         GSI2PK=TENANT#<t>#TO#<type>#<id>    GSI2SK=KIND#<kind>#LINK#<id>
//	summary: PK=TENANT#<t>  SK=ENTITY#<type>#<id>
const (
	recordTypeLink    = "LINK"
	recordTypeSummary = "ENTITY_SUMMARY"

	defaultOutgoingIndex = "GSI1"
	defaultIncomingIndex = "GSI2"
)

func tenantPK(tenantID string) string {
	return "TENANT#" + tenantID
}

func linkSK(id string) string {
	return "LINK#" + id
}

func fromPK(ref entities.EntityRef) string {
	return fmt.Sprintf("TENANT#%s#FROM#%s#%s", ref.TenantID, ref.Type, ref.ID)
}

func toPK(ref entities.EntityRef) string {
	return fmt.Sprintf("TENANT#%s#TO#%s#%s", ref.TenantID, ref.Type, ref.ID)
}

func kindPrefix(kind entities.LinkKind) string {
	return "KIND#" + string(kind) + "#"
}

func kindSK(kind entities.LinkKind, id string) string {
	return kindPrefix(kind) + "LINK#" + id
}

func summarySK(entityType entities.EntityType, id string) string {
	return fmt.Sprintf("ENTITY#%s#%s", entityType, id)
}

// linkItem is the stored shape of a link
type linkItem struct {
	PK         string                 `dynamodbav:"PK"`
	SK         string                 `dynamodbav:"SK"`
	GSI1PK     string                 `dynamodbav:"GSI1PK"`
	GSI1SK     string                 `dynamodbav:"GSI1SK"`
	GSI2PK     string                 `dynamodbav:"GSI2PK"`
	GSI2SK     string                 `dynamodbav:"GSI2SK"`
	EntityType string                 `dynamodbav:"EntityType"`
	LinkID     string                 `dynamodbav:"LinkID"`
	TenantID   string                 `dynamodbav:"TenantID"`
	FromType   string                 `dynamodbav:"FromType"`
	FromID     string                 `dynamodbav:"FromID"`
	ToType     string                 `dynamodbav:"ToType"`
	ToID       string                 `dynamodbav:"ToID"`
	Kind       string                 `dynamodbav:"Kind"`
	Note       string                 `dynamodbav:"Note,omitempty"`
	Metadata   map[string]interface{} `dynamodbav:"Metadata,omitempty"`
	Active     bool                   `dynamodbav:"Active"`
	CreatedBy  string                 `dynamodbav:"CreatedBy,omitempty"`
	CreatedAt  string                 `dynamodbav:"CreatedAt"`
	UpdatedAt  string                 `dynamodbav:"UpdatedAt"`
}

func newLinkItem(link *entities.EntityLink) linkItem {
	return linkItem{
		PK:         tenantPK(link.TenantID),
		SK:         linkSK(link.ID),
		GSI1PK:     fromPK(link.From()),
		GSI1SK:     kindSK(link.Kind, link.ID),
		GSI2PK:     toPK(link.To()),
		GSI2SK:     kindSK(link.Kind, link.ID),
		EntityType: recordTypeLink,
		LinkID:     link.ID,
		TenantID:   link.TenantID,
		FromType:   string(link.FromType),
		FromID:     link.FromID,
		ToType:     string(link.ToType),
		ToID:       link.ToID,
		Kind:       string(link.Kind),
		Note:       link.Note,
		Metadata:   link.Metadata,
		Active:     link.Active,
		CreatedBy:  link.CreatedBy,
		CreatedAt:  utils.FormatTimestamp(link.CreatedAt),
		UpdatedAt:  utils.FormatTimestamp(link.UpdatedAt),
	}
}

func (i linkItem) toEntity() (*entities.EntityLink, error) {
	createdAt, err := utils.ParseTimestamp(i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid CreatedAt on link %s: %w", i.LinkID, err)
	}
	updatedAt, err := utils.ParseTimestamp(i.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid UpdatedAt on link %s: %w", i.LinkID, err)
	}
	return &entities.EntityLink{
		ID:        i.LinkID,
		TenantID:  i.TenantID,
		FromType:  entities.EntityType(i.FromType),
		FromID:    i.FromID,
		ToType:    entities.EntityType(i.ToType),
		ToID:      i.ToID,
		Kind:      entities.LinkKind(i.Kind),
		Note:      i.Note,
		Metadata:  i.Metadata,
		Active:    i.Active,
		CreatedBy: i.CreatedBy,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func marshalLink(link *entities.EntityLink) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(newLinkItem(link))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal link %s: %w", link.ID, err)
	}
	return item, nil
}

func unmarshalLink(av map[string]types.AttributeValue) (*entities.EntityLink, error) {
	var item linkItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link: %w", err)
	}
	return item.toEntity()
}

// summaryItem is the stored shape of endpoint display data
type summaryItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	ID         string `dynamodbav:"ID"`
	Type       string `dynamodbav:"Type"`
	Title      string `dynamodbav:"Title,omitempty"`
	Status     string `dynamodbav:"Status,omitempty"`
	URL        string `dynamodbav:"URL,omitempty"`
}

func newSummaryItem(tenantID string, s entities.EntitySummary) summaryItem {
	return summaryItem{
		PK:         tenantPK(tenantID),
		SK:         summarySK(s.Type, s.ID),
		EntityType: recordTypeSummary,
		ID:         s.ID,
		Type:       string(s.Type),
		Title:      s.Title,
		Status:     s.Status,
		URL:        s.URL,
	}
}

func (i summaryItem) toEntity() entities.EntitySummary {
	return entities.EntitySummary{
		ID:     i.ID,
		Title:  i.Title,
		Type:   entities.EntityType(i.Type),
		Status: i.Status,
		URL:    i.URL,
	}
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func keyString(key map[string]types.AttributeValue) string {
	var parts []string
	for _, name := range []string{"PK", "SK"} {
		if s, ok := key[name].(*types.AttributeValueMemberS); ok {
			parts = append(parts, s.Value)
		}
	}
	return strings.Join(parts, "|")
}
