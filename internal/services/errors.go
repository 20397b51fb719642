package services

import (
	"errors"
	"fmt"

	"essay-corrector-backend/internal/common"
)

var (
	ErrNotFound            = common.ErrNotFound
	ErrInsufficientCredits = common.ErrInsufficientCredits

	ErrForbidden          = errors.New("forbidden")
	ErrQuotaExceeded      = fmt.Errorf("%w: exam paper quota exceeded", ErrForbidden)
	ErrConflict           = errors.New("operation not allowed in current status")
	ErrBadRequest         = errors.New("bad request")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrStorageUnavailable = errors.New("object storage is not configured")
	ErrAIFailure          = errors.New("language model call failed")
	ErrInternal           = errors.New("internal failure")
)
