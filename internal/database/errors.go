package database

import "errors"

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTitleRequired = errors.New("task title is required")
	ErrItemNotFound  = errors.New("sync queue item not found")
)
