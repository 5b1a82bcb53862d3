// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/collections/transform"
	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"

	"github.com/reviewms/deleteproject/core/project"
)

const (
	// ProjectDeletedTopic carries ProjectDeleted events to the peer
	// fan-out layer.
	ProjectDeletedTopic = "replication.project-deleted"

	// ChangesDeletedTopic carries ChangesDeleted events to the peer
	// fan-out layer.
	ChangesDeletedTopic = "replication.changes-deleted"
)

// ProjectDeleted announces that a project has been deleted (or
// preserved) so peers converge.
type ProjectDeleted struct {
	Project  string `json:"project"`
	Preserve bool   `json:"preserve"`
	TaskID   string `json:"task-id"`
}

// ChangesDeleted announces the removal of a set of change records.
type ChangesDeleted struct {
	Project  string `json:"project"`
	Changes  []int  `json:"changes"`
	Preserve bool   `json:"preserve"`
	TaskID   string `json:"task-id"`
}

// ChangeIndexer removes deleted changes from the local search index.
type ChangeIndexer interface {
	DeleteChanges(ctx context.Context, changes []project.ChangeID) error
}

// BroadcasterConfig holds the dependencies of a Broadcaster.
type BroadcasterConfig struct {
	Hub     *pubsub.StructuredHub
	Indexer ChangeIndexer

	// NewTaskID returns a fresh correlation token for the change-set
	// broadcast. Defaults to uuid generation.
	NewTaskID func() string
}

// Validate checks that the config has all the required values.
func (config BroadcasterConfig) Validate() error {
	if config.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if config.Indexer == nil {
		return errors.NotValidf("nil Indexer")
	}
	return nil
}

// Broadcaster propagates change and project deletions to peer nodes.
// Beyond the local index removal it mutates nothing: a failure here
// does not unwind already-completed local state.
type Broadcaster struct {
	config BroadcasterConfig
}

// NewBroadcaster returns a Broadcaster with the supplied configuration.
func NewBroadcaster(config BroadcasterConfig) (*Broadcaster, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.NewTaskID == nil {
		config.NewTaskID = uuid.NewString
	}
	return &Broadcaster{config: config}, nil
}

// ReplicateChangeDeletion removes the given changes from the local
// index, then broadcasts the same set of identifiers to peers. The
// local removal happens first so a peer that immediately queries this
// node sees state consistent with the event it just received.
func (b *Broadcaster) ReplicateChangeDeletion(ctx context.Context, name project.Name, changes []project.ChangeID, preserve bool) error {
	if len(changes) == 0 {
		return nil
	}
	if err := b.config.Indexer.DeleteChanges(ctx, changes); err != nil {
		return errors.Annotatef(err, "removing changes of %q from the local index", name)
	}
	event := ChangesDeleted{
		Project:  name.String(),
		Changes:  transform.Slice(changes, func(id project.ChangeID) int { return int(id) }),
		Preserve: preserve,
		TaskID:   b.config.NewTaskID(),
	}
	logger.Debugf("broadcasting deletion of %d changes of %q (task %s)", len(changes), name, event.TaskID)
	if _, err := b.config.Hub.Publish(ChangesDeletedTopic, event); err != nil {
		return errors.Annotatef(err, "broadcasting change deletion for %q", name)
	}
	return nil
}

// ReplicateProjectDeletion broadcasts the project deletion itself,
// tagged with the operation's task id so peers can correlate it with
// the daemon's delayed physical removal.
func (b *Broadcaster) ReplicateProjectDeletion(ctx context.Context, name project.Name, preserve bool, taskID string) error {
	event := ProjectDeleted{
		Project:  name.String(),
		Preserve: preserve,
		TaskID:   taskID,
	}
	logger.Infof("broadcasting deletion of project %q (preserve=%v, task %s)", name, preserve, taskID)
	if _, err := b.config.Hub.Publish(ProjectDeletedTopic, event); err != nil {
		return errors.Annotatef(err, "broadcasting project deletion for %q", name)
	}
	return nil
}
