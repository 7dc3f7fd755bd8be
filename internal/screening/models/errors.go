package models

import "errors"

var (
	// ErrNotFound is returned when a request, result, match, rule or entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an entity is listed under an id already in use
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyReviewed is returned when a disposition was already recorded for a match
	ErrAlreadyReviewed = errors.New("match already reviewed")
	// ErrInvalidDecision is returned for an unknown review decision
	ErrInvalidDecision = errors.New("invalid review decision")
	// ErrMissingReviewer is returned when a disposition names no reviewer
	ErrMissingReviewer = errors.New("reviewer id is required")
	// ErrNoUsableProviders is returned when a request names no configured, enabled provider
	ErrNoUsableProviders = errors.New("no usable providers")
	// ErrAllProvidersFailed is returned when every attempted provider call failed
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrInvalidTransition is returned for an illegal request status change
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidRule is returned when a rule definition cannot be evaluated
	ErrInvalidRule = errors.New("invalid rule")
)
