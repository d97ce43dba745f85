package persistence

import "errors"

// Sentinel errors surfaced by stores. Domain repositories translate these
// into their own service errors.
var (
	// ErrNotFound covers both true absence and rows scoped away from the
	// caller's school; stores never distinguish the two.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate signals a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrSeasonOverlap signals that a season's dates intersect an existing
	// season of the same school.
	ErrSeasonOverlap = errors.New("season dates overlap an existing season")
	// ErrSeasonClosed signals a write against a closed season.
	ErrSeasonClosed = errors.New("season is closed")
	// ErrSeasonDateOrder signals a patch whose merged dates leave the season
	// ending on or before its start.
	ErrSeasonDateOrder = errors.New("season start date must precede its end date")
)
