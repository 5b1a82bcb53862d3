// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package deleter implements the project deletion coordinator. Given a
// delete request it decides between the single-node and the replicated
// protocol, sequences the database, filesystem and cache collaborators,
// and propagates the deletion to peer nodes. The multi-step mutation is
// forward-only: the first fatal error aborts the remaining steps and
// nothing already completed is unwound, and there are no retries at
// this layer.
package deleter

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/collections/transform"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"

	"github.com/reviewms/deleteproject/core/project"
)

var logger = loggo.GetLogger("deleteproject.deleter")

// DatabaseHandler removes a project's review history from the
// change-tracking database.
type DatabaseHandler interface {
	// Delete removes every change record of the project.
	Delete(ctx context.Context, name project.Name) error

	// ReplicatedDeleteChanges removes every change record of the
	// project and returns the removed records so the same removals can
	// be replayed on the local index and broadcast to peers. A
	// concurrent mutation of the same rows is reported as
	// ErrConcurrentUpdate.
	ReplicatedDeleteChanges(ctx context.Context, name project.Name) ([]project.ChangeRecord, error)
}

// FilesystemHandler removes a project's repository from disk and from
// the in-process repository cache.
type FilesystemHandler interface {
	// Delete removes the repository tree. With preserve set the tree
	// is archived rather than destroyed. A missing repository is
	// reported as a NotFound error.
	Delete(ctx context.Context, name project.Name, preserve bool) error

	// DeleteFromCache drops the in-process handle on the repository
	// only, leaving the directory for the replication daemon to remove
	// asynchronously.
	DeleteFromCache(ctx context.Context, name project.Name) error
}

// CacheHandler evicts a project's cached derived views.
type CacheHandler interface {
	Delete(ctx context.Context, name project.Name) error
}

// HideHandler removes a project from active project lists without
// touching its data.
type HideHandler interface {
	Hide(ctx context.Context, name project.Name) error
}

// DeleteLog receives exactly one record per coordinator invocation,
// success or failure.
type DeleteLog interface {
	OnDelete(user names.UserTag, name project.Name, request project.DeleteRequest, err error)
}

// ReplicationProbe reports whether a project operates in replicated
// mode.
type ReplicationProbe interface {
	IsReplicated(name project.Name) (bool, error)
}

// RemovalScheduler asks the replication daemon to archive a repository
// and schedule its eventual physical removal. The call only schedules:
// completion is out of band.
type RemovalScheduler interface {
	ScheduleRemoval(ctx context.Context, name project.Name, taskID string) error
}

// ChangeReplicator removes a set of changes from the local index and
// propagates the same removals to peer nodes.
type ChangeReplicator interface {
	ReplicateChangeDeletion(ctx context.Context, name project.Name, changes []project.ChangeID, preserve bool) error
}

// ProjectReplicator announces a project deletion to peer nodes.
type ProjectReplicator interface {
	ReplicateProjectDeletion(ctx context.Context, name project.Name, preserve bool, taskID string) error
}

// Config holds the collaborators and settings of a Deleter.
type Config struct {
	Database   DatabaseHandler
	Filesystem FilesystemHandler
	Cache      CacheHandler
	Hide       HideHandler
	Log        DeleteLog
	Probe      ReplicationProbe
	Archiver   RemovalScheduler
	Changes    ChangeReplicator
	Projects   ProjectReplicator
	Metrics    *Collector

	// HideOnPreserve hides preserved projects instead of deleting
	// them.
	HideOnPreserve bool

	// ChangeDatabaseDisabled skips review-history deletion on the
	// non-replicated path, for deployments whose change database has
	// been migrated away.
	ChangeDatabaseDisabled bool

	// NewTaskID returns a fresh correlation token per delete
	// operation. Defaults to uuid generation.
	NewTaskID func() string
}

// Validate checks that the config has all the required values.
func (config Config) Validate() error {
	if config.Database == nil {
		return errors.NotValidf("nil Database")
	}
	if config.Filesystem == nil {
		return errors.NotValidf("nil Filesystem")
	}
	if config.Cache == nil {
		return errors.NotValidf("nil Cache")
	}
	if config.Hide == nil {
		return errors.NotValidf("nil Hide")
	}
	if config.Log == nil {
		return errors.NotValidf("nil Log")
	}
	if config.Probe == nil {
		return errors.NotValidf("nil Probe")
	}
	if config.Archiver == nil {
		return errors.NotValidf("nil Archiver")
	}
	if config.Changes == nil {
		return errors.NotValidf("nil Changes")
	}
	if config.Projects == nil {
		return errors.NotValidf("nil Projects")
	}
	if config.Metrics == nil {
		return errors.NotValidf("nil Metrics")
	}
	return nil
}

// Deleter coordinates the deletion of a project across its backing
// stores and, in replicated deployments, across peer nodes.
type Deleter struct {
	config Config
}

// New returns a Deleter with the supplied configuration.
func New(config Config) (*Deleter, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.NewTaskID == nil {
		config.NewTaskID = uuid.NewString
	}
	return &Deleter{config: config}, nil
}

// Delete removes (or hides) the named project. The request runs
// synchronously to completion; cancellation mid-sequence is not
// supported. Exactly one audit record is written per invocation,
// whether the run succeeds or fails at any step.
func (d *Deleter) Delete(ctx context.Context, user names.UserTag, name project.Name, request project.DeleteRequest) (err error) {
	mode := modeNonReplicated
	defer func() {
		d.config.Log.OnDelete(user, name, request, err)
		d.config.Metrics.observe(mode, err)
	}()

	replicated, probeErr := d.config.Probe.IsReplicated(name)
	if probeErr != nil {
		logger.Warningf("cannot determine replication mode of %q, assuming non-replicated: %v", name, probeErr)
		replicated = false
	}
	if replicated {
		mode = modeReplicated
		return d.deleteReplicated(ctx, name, request)
	}
	return d.deleteNonReplicated(ctx, name, request)
}

func (d *Deleter) deleteNonReplicated(ctx context.Context, name project.Name, request project.DeleteRequest) error {
	if request.Preserve && d.config.HideOnPreserve {
		return errors.Trace(d.config.Hide.Hide(ctx, name))
	}
	if !d.config.ChangeDatabaseDisabled {
		if err := d.config.Database.Delete(ctx, name); err != nil {
			return errors.Annotatef(err, "deleting review history of %q", name)
		}
	}
	if err := d.config.Filesystem.Delete(ctx, name, request.Preserve); err != nil {
		// A missing repository is typically a benign race with a prior
		// deletion; surface it as not found. The database mutation
		// above stands regardless.
		return errors.Trace(err)
	}
	return errors.Trace(d.config.Cache.Delete(ctx, name))
}

func (d *Deleter) deleteReplicated(ctx context.Context, name project.Name, request project.DeleteRequest) error {
	if request.Preserve && d.config.HideOnPreserve {
		return errors.Trace(d.config.Hide.Hide(ctx, name))
	}
	taskID := d.config.NewTaskID()
	logger.Debugf("deleting replicated project %q (preserve=%v, task %s)", name, request.Preserve, taskID)

	// The archive request goes first: it is the only step whose
	// completion means "accepted for later processing" rather than
	// "done", so its asynchronous failure window opens as early as
	// possible. A preserved project keeps its repository, so nothing
	// is archived.
	if !request.Preserve {
		if err := d.config.Archiver.ScheduleRemoval(ctx, name, taskID); err != nil {
			return errors.Annotatef(err, "archiving repository of %q", name)
		}
	}

	changes, err := d.config.Database.ReplicatedDeleteChanges(ctx, name)
	if err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			logger.Errorf("concurrent modification while deleting review history of %q: %v", name, err)
		}
		return errors.Trace(err)
	}

	// The daemon removes the directory later; only the in-process
	// handle goes now.
	if err := d.config.Filesystem.DeleteFromCache(ctx, name); err != nil {
		if errors.Is(err, errors.NotFound) {
			logger.Errorf("repository of %q not found: %v", name, err)
		}
		return errors.Trace(err)
	}

	if !request.Preserve {
		if err := d.config.Cache.Delete(ctx, name); err != nil {
			return errors.Trace(err)
		}
	}

	// Local state is fully mutated before anything reaches the peers,
	// so a peer that queries this node on receipt sees state
	// consistent with the broadcast.
	if len(changes) > 0 {
		ids := transform.Slice(changes, func(c project.ChangeRecord) project.ChangeID { return c.ID })
		if err := d.config.Changes.ReplicateChangeDeletion(ctx, name, ids, request.Preserve); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(d.config.Projects.ReplicateProjectDeletion(ctx, name, request.Preserve, taskID))
}
