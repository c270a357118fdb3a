package process

import "errors"

var (
	// ErrProcessNotFound — процесс не зарегистрирован.
	ErrProcessNotFound = errors.New("process not found")

	// ErrInvalidInput — входные параметры не прошли проверку по описанию процесса.
	ErrInvalidInput = errors.New("invalid input")
)
