// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package project holds the domain types shared by the deletion
// coordinator and its collaborators.
package project

// Name uniquely identifies a project within the system.
type Name string

// String is in fmt.Stringer.
func (n Name) String() string {
	return string(n)
}

// ChangeID identifies a single unit of review history belonging to a
// project.
type ChangeID int

// ChangeRecord is one unit of review history owned by a project. The
// database collaborator returns the records it removed so that the same
// removals can be replayed on the local index and broadcast to peers.
type ChangeRecord struct {
	ID      ChangeID
	Project Name
}

// DeleteRequest carries the options of a single delete operation.
type DeleteRequest struct {
	// Preserve requests metadata-only removal: review history is kept
	// and the repository on disk is not destroyed.
	Preserve bool

	// Force is consumed by the precondition gate, not by the
	// coordinator itself.
	Force bool
}
