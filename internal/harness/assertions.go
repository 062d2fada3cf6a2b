package harness

import "fmt"

// Verify checks every assertion against the result and returns the
// first failure.
func (r *Result) Verify(assertions []Assertion) error {
	for i, a := range assertions {
		if err := r.verifyOne(a); err != nil {
			return fmt.Errorf("assertion %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func (r *Result) verifyOne(a Assertion) error {
	switch a.Type {
	case AssertStats:
		want := *a.Stats
		got := r.Stats
		if got.Total != want.Total || got.Pending != want.Pending ||
			got.Syncing != want.Syncing || got.Failed != want.Failed {
			return fmt.Errorf("stats = %+v, want %+v", got, want)
		}
		return nil

	case AssertPendingOrder:
		if len(r.Pending) != len(a.Order) {
			return fmt.Errorf("%d pending commands, want %d", len(r.Pending), len(a.Order))
		}
		for i, want := range a.Order {
			got := r.Pending[i].EntityType + "/" + r.Pending[i].EntityID
			if got != want {
				return fmt.Errorf("pending[%d] = %s, want %s", i, got, want)
			}
		}
		return nil

	case AssertEventCount:
		count := 0
		for _, te := range r.Trace {
			if te.Type == a.Event {
				count++
			}
		}
		if count != a.Count {
			return fmt.Errorf("event %q appeared %d times, want %d", a.Event, count, a.Count)
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}
