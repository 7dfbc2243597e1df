package common

import "errors"

// Общие ошибки для всех репозиториев
var (
	ErrNotFound = errors.New("entity not found")
	// ErrStatusConflict возвращается, когда условное обновление по статусу
	// не нашло строку: кто-то успел изменить статус раньше нас.
	ErrStatusConflict = errors.New("entity status changed concurrently")
	ErrAlreadyExists  = errors.New("entity already exists")
	ErrInvalidInput   = errors.New("invalid input")
)
