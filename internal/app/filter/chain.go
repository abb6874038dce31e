package filter

import (
	"context"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the candidate.
// Filters are only applied if they declare they apply to the requester's role.
func (c *Chain) Execute(ctx context.Context, cand Candidate) Result {
	for _, f := range c.filters {
		if cand.Requester != nil && !f.AppliesTo(cand.Requester.Role) {
			continue
		}

		result := f.Check(ctx, cand)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
