package media

import "errors"

// Failure classes used across the pipeline. Wrap them with fmt.Errorf("%w")
// and match with errors.Is.
var (
	// ErrResolutionDegraded marks a failed redirect probe. Never fatal.
	ErrResolutionDegraded = errors.New("url resolution degraded")
	// ErrExtractionFailed marks a failed or timed out extraction job.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrNoMediaProduced means zero usable assets after all jobs.
	ErrNoMediaProduced = errors.New("no media produced")
	// ErrDeliveryFailed means the transport rejected an asset.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// IsKnownFailure reports whether err belongs to a user-facing failure class.
func IsKnownFailure(err error) bool {
	return errors.Is(err, ErrExtractionFailed) ||
		errors.Is(err, ErrNoMediaProduced) ||
		errors.Is(err, ErrDeliveryFailed)
}
