package buddy

import "github.com/cockroachdb/errors"

// Error definitions for the buddy tier.
var (
	// ErrNoSpaceAvailable names exhaustion: no suitable free block exists.
	// Alloc reports that case with ok == false and does not return this value.
	ErrNoSpaceAvailable = errors.New("buddy: no space available")
	// ErrSizeTooLarge names a request whose order exceeds MaxOrder. Alloc
	// reports that case with ok == false and does not return this value.
	ErrSizeTooLarge = errors.New("buddy: requested size is too large for this allocator")
	// ErrInvalidOrder is the value Free panics with (under SanityChecks) when
	// called with an order outside [MinOrder, MaxOrder].
	ErrInvalidOrder = errors.New("buddy: invalid order passed to Free")
	// ErrNotInitialized names use of the allocator before Init. Alloc reports
	// that case with ok == false and does not return this value; Free does
	// not check for it.
	ErrNotInitialized = errors.New("buddy: allocator used before Init")
)
