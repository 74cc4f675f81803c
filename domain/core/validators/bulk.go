package validators

import (
	"context"

	"linkgraph/domain/core/entities"
)

// BulkOptions configures ValidateBulkLinks.
type BulkOptions struct {
	Options
	StopOnFirstError bool
}

// BulkValidationResult holds one result per validated item, in input order.
// With StopOnFirstError the slice ends at the first invalid item.
type BulkValidationResult struct {
	Valid   bool                `json:"valid"`
	Results []*ValidationResult `json:"results"`
}

// InvalidIndexes lists the positions of items that failed validation.
func (r *BulkValidationResult) InvalidIndexes() []int {
	var out []int
	for i, res := range r.Results {
		if !res.Valid {
			out = append(out, i)
		}
	}
	return out
}

// ValidateBulkLinks validates every item. Dependency-class items that pass are
// added to the cycle scope of the items after them, so a batch cannot close a
// cycle through its own members.
func (v *LinkValidator) ValidateBulkLinks(ctx context.Context, links []entities.LinkRequest, opts BulkOptions) *BulkValidationResult {
	out := &BulkValidationResult{
		Valid:   true,
		Results: make([]*ValidationResult, 0, len(links)),
	}

	var pending []entities.LinkRequest
	for _, link := range links {
		res := v.validate(ctx, link.From, link.To, link.Kind, opts.Options, pending)
		out.Results = append(out.Results, res)

		if !res.Valid {
			out.Valid = false
			if opts.StopOnFirstError {
				break
			}
			continue
		}
		if link.Kind.IsDependencyClass() {
			pending = append(pending, link)
		}
	}

	return out
}
