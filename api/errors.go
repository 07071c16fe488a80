package api

import "errors"

// Storage layers signal outcomes with these sentinels so handlers can map
// them to responses. Not-found and no-change are deliberately distinct: a
// caller can tell "target missing" from "nothing to do".
var (
	// ErrNotFound means the referenced parent document, element or user
	// does not exist, or a required condition (member, admin, sender) did
	// not match.
	ErrNotFound = errors.New("not found")

	// ErrNoChange means the target exists but the operation had nothing to
	// do, such as deleting a friend request that was never sent.
	ErrNoChange = errors.New("no change")

	// ErrForbidden means the actor exists and the target exists, but the
	// actor is not allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrExists means a uniqueness constraint was violated, such as
	// registering an email twice.
	ErrExists = errors.New("already exists")
)
