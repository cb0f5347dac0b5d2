package service

import "errors"

// ErrInvalidRequest marks caller mistakes such as a blank platform id.
var ErrInvalidRequest = errors.New("invalid request")
