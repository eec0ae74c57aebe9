package pick

import "errors"

// ErrInvalidTransition reports an event that is not legal from the product's
// current state. The engine makes no state change; this is a caller contract
// violation, not a system fault.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// ErrProductBusy reports that a search round is already in flight for the
// product. At most one Searching operation may run per product at any time.
var ErrProductBusy = errors.New("product already has a search in flight")

// ErrProductNotFound reports a missing product row.
var ErrProductNotFound = errors.New("product not found")
