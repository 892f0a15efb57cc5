package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Entitlement lifecycle errors
	ErrNoEntitlement       = errors.New("no active entitlement")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAlreadySubscribed   = errors.New("account already has an active paid entitlement")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrIsDefaultPlan       = errors.New("default plan cannot be purchased")
	ErrCannotCancelDefault = errors.New("default plan cannot be cancelled")
	ErrPlanNotPurchasable  = errors.New("plan is not purchasable")

	// Payment reconciliation errors
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrDuplicateEvent   = errors.New("gateway event already processed")
	ErrOrderNotFound    = errors.New("order not found")
)
