// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/reviewms/deleteproject/core/project"
)

const (
	// daemonEndpoint is the replication daemon's repository-path
	// endpoint.
	daemonEndpoint = "/gerrit/delete"

	repoPathParam = "repoPath"
	taskIDParam   = "taskIdForDelayedRemoval"

	// The daemon speaks XML on this endpoint.
	daemonContentType = "application/xml"
)

// ErrRemovalNotScheduled indicates that the replication daemon could
// not be asked to archive and remove a repository, either because the
// request did not complete or because it returned an unrecognized
// status.
const ErrRemovalNotScheduled = errors.ConstError("repository removal not scheduled")

// HTTPClient is the interface that is used to do http requests.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(*http.Request) (*http.Response, error)
}

// ArchiverConfig holds the dependencies of an Archiver.
type ArchiverConfig struct {
	Source Source
	Client HTTPClient
}

// Validate checks that the config has all the required values.
func (config ArchiverConfig) Validate() error {
	if config.Client == nil {
		return errors.NotValidf("nil Client")
	}
	return nil
}

// Archiver asks the local replication daemon to archive a repository
// and schedule its eventual physical removal. The daemon's removal is
// out of band and asynchronous: a successful call only means the work
// was accepted, tagged with the task id so the daemon and peers can
// correlate it with the logical deletion.
type Archiver struct {
	config ArchiverConfig
}

// NewArchiver returns an Archiver with the supplied configuration.
func NewArchiver(config ArchiverConfig) (*Archiver, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Archiver{config: config}, nil
}

// ScheduleRemoval issues a single outbound DELETE to the daemon. A 200
// or 202 response means accepted; anything else, or a transport
// failure, is fatal and carries the response body for diagnostics. A
// host with no daemon port configured skips the call entirely.
func (a *Archiver) ScheduleRemoval(ctx context.Context, name project.Name, taskID string) error {
	props, err := a.config.Source.Properties()
	if err != nil {
		return errors.Trace(err)
	}
	if props.DaemonPort == "" {
		logger.Warningf("no replication daemon port configured, not scheduling removal of %q", name)
		return nil
	}
	repoPath := resolveRepoPath(props.RepoRoot, name)
	endpoint := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort("127.0.0.1", props.DaemonPort),
		Path:   daemonEndpoint,
		RawQuery: url.Values{
			repoPathParam: {repoPath},
			taskIDParam:   {taskID},
		}.Encode(),
	}
	logger.Infof("requesting archive and removal of %q (task %s)", repoPath, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint.String(), nil)
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Content-Type", daemonContentType)
	req.Header.Set("Accept", daemonContentType)

	resp, err := a.config.Client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting removal of %q: %v%w", repoPath, err, errors.Hide(ErrRemovalNotScheduled))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("replication daemon refused removal of %q: status %d: %s%w",
		repoPath, resp.StatusCode, body, errors.Hide(ErrRemovalNotScheduled))
}

// resolveRepoPath finds the repository directory for a project. The
// ".git" suffix is assumed; a bare directory is used only when it
// actually exists and the suffixed one does not.
func resolveRepoPath(root string, name project.Name) string {
	withSuffix := filepath.Join(root, name.String()+repoSuffix)
	if _, err := os.Stat(withSuffix); err == nil {
		return withSuffix
	}
	bare := filepath.Join(root, name.String())
	if _, err := os.Stat(bare); err == nil {
		return bare
	}
	return withSuffix
}
