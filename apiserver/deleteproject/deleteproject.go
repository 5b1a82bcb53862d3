// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package deleteproject exposes project deletion to the request layer:
// a single delete operation gated by preconditions, plus the action
// description backing the deletion affordance in the UI.
package deleteproject

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"

	"github.com/reviewms/deleteproject/core/project"
)

var logger = loggo.GetLogger("deleteproject.apiserver")

// ErrPerm is returned when the acting user may not delete the project.
const ErrPerm = errors.ConstError("permission denied")

// DeleteProjectArgs are the arguments of the Delete operation.
type DeleteProjectArgs struct {
	Project  string `json:"project"`
	Preserve bool   `json:"preserve"`
	Force    bool   `json:"force"`
}

// ActionDescription describes the deletion affordance shown for a
// project.
type ActionDescription struct {
	Label   string `json:"label"`
	Title   string `json:"title"`
	Enabled bool   `json:"enabled"`
	Visible bool   `json:"visible"`
}

// Coordinator runs the deletion protocol end to end.
type Coordinator interface {
	Delete(ctx context.Context, user names.UserTag, name project.Name, request project.DeleteRequest) error
}

// Preconditions gates delete requests before the coordinator runs.
type Preconditions interface {
	// AssertDeletePermission fails with ErrPerm when the user may not
	// delete the project.
	AssertDeletePermission(ctx context.Context, user names.UserTag, name project.Name) error

	// AssertCanBeDeleted fails when the project's current state rules
	// the request out (open changes without force, protected project,
	// and so on).
	AssertCanBeDeleted(ctx context.Context, name project.Name, request project.DeleteRequest) error

	// CanDelete reports, without failing, whether the affordance
	// should be visible to the user at all.
	CanDelete(ctx context.Context, user names.UserTag, name project.Name) bool
}

// ReplicationProbe reports whether a project operates in replicated
// mode.
type ReplicationProbe interface {
	IsReplicated(name project.Name) (bool, error)
}

// APIConfig holds the dependencies of the API.
type APIConfig struct {
	Coordinator   Coordinator
	Preconditions Preconditions
	Probe         ReplicationProbe

	// AllProjects is the root project every other project inherits
	// from; it can never be deleted.
	AllProjects project.Name
}

// Validate checks that the config has all the required values.
func (config APIConfig) Validate() error {
	if config.Coordinator == nil {
		return errors.NotValidf("nil Coordinator")
	}
	if config.Preconditions == nil {
		return errors.NotValidf("nil Preconditions")
	}
	if config.Probe == nil {
		return errors.NotValidf("nil Probe")
	}
	if config.AllProjects == "" {
		return errors.NotValidf("empty AllProjects")
	}
	return nil
}

// API is the inbound surface of project deletion.
type API struct {
	config APIConfig
}

// NewAPI returns an API with the supplied configuration.
func NewAPI(config APIConfig) (*API, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &API{config: config}, nil
}

// Delete removes the project named in args on behalf of user. On
// success the acknowledgment is empty; on failure the error carries
// the kind the coordinator raised.
func (api *API) Delete(ctx context.Context, user names.UserTag, args DeleteProjectArgs) error {
	name := project.Name(args.Project)
	request := project.DeleteRequest{Preserve: args.Preserve, Force: args.Force}
	if err := api.config.Preconditions.AssertDeletePermission(ctx, user, name); err != nil {
		return errors.Trace(err)
	}
	if err := api.config.Preconditions.AssertCanBeDeleted(ctx, name, request); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(api.config.Coordinator.Delete(ctx, user, name, request))
}

// Description reports how the deletion affordance should be rendered
// for the named project. Unlike the coordinator, a probe failure here
// assumes the repository is replicated, so the user is offered the
// more conservative clean-up wording.
func (api *API) Description(ctx context.Context, user names.UserTag, name project.Name) ActionDescription {
	replicated := true
	if r, err := api.config.Probe.IsReplicated(name); err != nil {
		logger.Errorf("cannot determine replication mode of %q, assuming replicated: %v", name, err)
	} else {
		replicated = r
	}
	verb := "Delete"
	qualifier := " "
	if replicated {
		verb = "Clean up"
		qualifier = " replicated "
	}
	description := ActionDescription{
		Label:   verb + "...",
		Title:   fmt.Sprintf("%s%sproject %s", verb, qualifier, name),
		Enabled: name != api.config.AllProjects,
		Visible: api.config.Preconditions.CanDelete(ctx, user, name),
	}
	if name == api.config.AllProjects {
		description.Title = fmt.Sprintf("No deletion of %s project", name)
	}
	return description
}
