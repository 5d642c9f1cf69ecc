package blog

import "errors"

// ValidationError marks a failure the submitting client caused. Handlers
// surface the message verbatim with a 400; everything else stays internal.
type ValidationError struct {
	reason string
}

func (e *ValidationError) Error() string {
	return e.reason
}

var (
	ErrInvalidTitle           = &ValidationError{"invalid title"}
	ErrInvalidDescription     = &ValidationError{"invalid description"}
	ErrMissingMainImage       = &ValidationError{"main image is required"}
	ErrInvalidMainImageFormat = &ValidationError{"main image must be in JPEG format"}
	ErrMainImageTooLarge      = &ValidationError{"main image size exceeds 1MB limit"}
	ErrInvalidPublishTime     = &ValidationError{"invalid date_time"}
	ErrInvalidAdditionalImage = &ValidationError{"invalid additional image(s)"}
)

var (
	ErrCompressionFailed = errors.New("image compression failed")
	ErrAllocationFailed  = errors.New("could not allocate next reference number")
)
