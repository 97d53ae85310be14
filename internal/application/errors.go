package application

import "errors"

var (
	ErrInvalidRecord   = errors.New("invalid record request")
	ErrRecordNotFound  = errors.New("record not found")
	ErrTranscodeFailed = errors.New("transcoding could not be started")
	ErrTerminateFailed = errors.New("transcoding could not be terminated")
	ErrInvalidStation  = errors.New("invalid station data")
)
