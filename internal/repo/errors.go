package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrNotClaimed — запись уже не удовлетворяет условию захвата
	// (её забрал другой проход или изменил воркер).
	ErrNotClaimed = errors.New("not claimed")

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)
