package engine

import "context"

// ItemFailure reports one failed item of a bulk operation.
type ItemFailure struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// BulkResult collects per-item outcomes. Succeeded holds results in input
// order; Stopped is set when processing halted at the first failure.
type BulkResult[T any] struct {
	Succeeded []T           `json:"succeeded"`
	Failed    []ItemFailure `json:"failed"`
	Stopped   bool          `json:"stopped,omitempty"`
}

// Fold applies apply to each item in order and accumulates the outcomes.
// With stopOnError it halts after the first failure. Nothing is rolled back.
func Fold[In, Out any](items []In, stopOnError bool, idOf func(In) string, apply func(In) (Out, error)) BulkResult[Out] {
	res := BulkResult[Out]{Succeeded: []Out{}, Failed: []ItemFailure{}}
	for i, item := range items {
		out, err := apply(item)
		if err == nil {
			res.Succeeded = append(res.Succeeded, out)
			continue
		}
		f := ItemFailure{Index: i, Kind: KindOf(err), Message: err.Error()}
		if idOf != nil {
			f.ID = idOf(item)
		}
		res.Failed = append(res.Failed, f)
		if stopOnError {
			res.Stopped = i < len(items)-1
			break
		}
	}
	return res
}

// RememberBulk stores each item as Remember would.
func (e *Engine) RememberBulk(ctx context.Context, c Caller, items []RememberInput, stopOnError bool) BulkResult[*WriteResult] {
	return Fold(items, stopOnError, nil, func(in RememberInput) (*WriteResult, error) {
		return e.remember(ctx, "remember_bulk", c, in)
	})
}

// ForgetBulk deletes each id as Forget would.
func (e *Engine) ForgetBulk(ctx context.Context, c Caller, ids []string, force, stopOnError bool) BulkResult[*ForgetResult] {
	return Fold(ids, stopOnError, func(id string) string { return id }, func(id string) (*ForgetResult, error) {
		return e.Forget(ctx, c, ForgetInput{ID: id, Force: force})
	})
}
