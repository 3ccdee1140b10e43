package index

import (
	"regexp"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
)

// MaxNameLength bounds index names.
const MaxNameLength = 128

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateName checks that name can be used as a directory and lock file
// name under the data directory.
func ValidateName(name string) error {
	if name == "" {
		return amerrors.New(amerrors.ErrCodeInvalidIndexName, "index name must not be empty", nil)
	}
	if len(name) > MaxNameLength {
		return amerrors.New(amerrors.ErrCodeInvalidIndexName, "index name is too long", nil).
			WithDetail("index", name)
	}
	if !namePattern.MatchString(name) {
		return amerrors.New(amerrors.ErrCodeInvalidIndexName, "index name may only contain letters, digits, '-' and '_'", nil).
			WithDetail("index", name).
			WithSuggestion("Use a name like 'products' or 'orders-2026'")
	}
	return nil
}
