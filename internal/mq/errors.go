package mq

import "errors"

var (
	// ErrNoChannel — соединение ещё не установлено или потеряно.
	ErrNoChannel = errors.New("no channel available")

	// ErrPermanent — сообщение невозможно обработать повторно.
	// Handler оборачивает им ошибку, чтобы сообщение ушло в DLQ без requeue.
	ErrPermanent = errors.New("permanent failure")
)
