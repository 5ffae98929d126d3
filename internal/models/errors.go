package models

import "errors"

var (
	ErrNotFound        = errors.New("content not found")
	ErrAccountNotFound = errors.New("account not found")
)
