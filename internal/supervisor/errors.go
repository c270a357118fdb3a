package supervisor

import "errors"

// ErrJobNotFound — job из события не найден в БД.
var ErrJobNotFound = errors.New("job not found")
