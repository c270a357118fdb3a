package output

import (
	"errors"
	"fmt"
)

var (
	// ErrOutputNotFound — по шаблону не найдено ни одного файла.
	ErrOutputNotFound = errors.New("output not found")

	// ErrUnsupportedDescriptor — дескриптор новее, чем понимает Locator.
	ErrUnsupportedDescriptor = errors.New("unsupported output descriptor version")
)

// NotFoundError — ошибка поиска с шаблоном, по которому искали.
type NotFoundError struct {
	Name    string
	Pattern string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%v: %s (%s)", ErrOutputNotFound, e.Name, e.Pattern)
	}
	return fmt.Sprintf("%v: %s", ErrOutputNotFound, e.Pattern)
}

func (e *NotFoundError) Unwrap() error { return ErrOutputNotFound }
