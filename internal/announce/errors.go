package announce

import "errors"

var (
	// ErrScopeUnresolved means the invocation has no usable guild.
	ErrScopeUnresolved = errors.New("could not find guild")

	// ErrCategoryNotFound matches any *CategoryNotFoundError.
	ErrCategoryNotFound = errors.New("category not found")
)

// CategoryNotFoundError reports a missing destination category.
type CategoryNotFoundError struct {
	Name string
}

func (e *CategoryNotFoundError) Error() string {
	return `could not find category "` + e.Name + `"`
}

func (e *CategoryNotFoundError) Is(target error) bool { return target == ErrCategoryNotFound }

// ReplyText renders a scope-level failure as the single line shown to the
// invoking user.
func ReplyText(err error) string {
	if err == nil {
		return ""
	}
	var cat *CategoryNotFoundError
	switch {
	case errors.As(err, &cat):
		return "Error: " + cat.Error() + "."
	case errors.Is(err, ErrScopeUnresolved):
		return "Error: " + ErrScopeUnresolved.Error() + "."
	default:
		return "Error: " + err.Error() + "."
	}
}
