package worker

import "errors"

// Ошибки воркера.
var (
	// ErrJobNotFound — job не найден в БД.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotQueued — job не в статусе QUEUED (уже взят или отменён).
	ErrJobNotQueued = errors.New("job is not in QUEUED status")

	// ErrPublishOutput — артефакт не удалось опубликовать.
	ErrPublishOutput = errors.New("publish output")
)
