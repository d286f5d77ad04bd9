package utils

import (
	"fmt"
)

// Wraps err with a formatted message. The result still matches err with errors.Is,
// and so does any cause passed with %w in detailsBody
func MakeError(err error, detailsBody string, args ...any) error {
	return fmt.Errorf("%w: "+detailsBody, append([]any{err}, args...)...)
}
