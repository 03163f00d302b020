package reconcile

import "errors"

// Sentinel errors for the reconciliation engine.
var (
	// ErrIdentityCollision reports that two freshly minted cell
	// identities collided. This indicates a broken identity source and is
	// raised as a panic rather than repaired, because any recovery policy
	// would mask substrate corruption.
	ErrIdentityCollision = errors.New("freshly generated cell identities collided")

	// ErrNotAttached is returned when reconciling against a handle that
	// is not part of a tree.
	ErrNotAttached = errors.New("handle is not attached to a tree")
)
