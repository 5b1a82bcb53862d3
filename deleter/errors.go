// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package deleter

import (
	"github.com/juju/errors"
)

// ErrConcurrentUpdate indicates that the database collaborator detected
// a concurrent mutation of the rows being deleted. It is re-raised to
// the caller unchanged; retrying is the caller's business, never this
// layer's.
const ErrConcurrentUpdate = errors.ConstError("concurrent update")
