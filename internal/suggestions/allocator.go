package suggestions

import "context"

// sequenceAllocator hands out the next sequence number for a tenant on top
// of the repository's durable counter. Next is side-effect-free; the counter
// only advances through Commit, which persists the record and bumps the
// counter in one atomic repository write, so a failed external post never
// consumes a number and the counter never trails the table. Concurrency
// safety comes from the tenant slot held by the caller, not from the
// allocator.
type sequenceAllocator struct {
	repo Repository
}

// Next returns the smallest sequence number not yet committed for the tenant.
func (a sequenceAllocator) Next(ctx context.Context, tenant TenantID) (SuggestionID, error) {
	count, err := a.repo.SequenceCount(ctx, tenant)
	if err != nil {
		return 0, err
	}
	return SuggestionID(count + 1), nil
}

// Commit durably claims the number returned by the matching Next call by
// persisting the record carrying it.
func (a sequenceAllocator) Commit(ctx context.Context, suggestion *Suggestion) error {
	return a.repo.Insert(ctx, suggestion)
}
