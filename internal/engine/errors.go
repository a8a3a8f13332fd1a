package engine

import "fmt"

// InvalidOperationError is returned when a mutation does not match the
// item's kind, e.g. toggling a photo item or attaching to an acknowledge
// item.
type InvalidOperationError struct {
	ItemID string
	Kind   string
	Op     string
}

func (e InvalidOperationError) Error() string {
	return fmt.Sprintf("cannot %s %s item %s", e.Op, e.Kind, e.ItemID)
}

// IncompleteRequiredItemsError is returned when completion is requested
// while required items remain open. Outstanding carries the count for
// user-facing messaging; callers should treat it as expected, not
// exceptional.
type IncompleteRequiredItemsError struct {
	Outstanding int
}

func (e IncompleteRequiredItemsError) Error() string {
	return fmt.Sprintf("%d required item(s) outstanding", e.Outstanding)
}
