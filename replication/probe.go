// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/reviewms/deleteproject/core/project"
)

// replicatedKey is the per-repository configuration flag that marks a
// repository as replicated.
const replicatedKey = "replicated"

// Probe determines, from local configuration alone, whether a project
// operates in replicated mode. Pure read, no side effects; the mode is
// recomputed on every request rather than stored.
type Probe struct {
	source Source
}

// NewProbe returns a probe reading through the given source.
func NewProbe(source Source) *Probe {
	return &Probe{source: source}
}

// IsReplicated reports whether the named project's repository is
// configured for replication. The repository directory is tried with
// the implicit ".git" suffix first and bare second. A missing file or
// key, or any value other than "true", means non-replicated.
//
// Callers disagree on what a probe failure means: the coordinator
// assumes non-replicated while the UI affordance assumes replicated.
// Both behaviors are preserved; see the callers.
func (p *Probe) IsReplicated(name project.Name) (bool, error) {
	props, err := p.source.Properties()
	if err != nil {
		return false, errors.Trace(err)
	}
	if props.RepoRoot == "" {
		return false, nil
	}
	for _, dir := range []string{name.String() + repoSuffix, name.String()} {
		value, err := repoConfigValue(filepath.Join(props.RepoRoot, dir, "config"), replicatedKey)
		if err != nil {
			return false, errors.Trace(err)
		}
		if value != "" {
			return strings.EqualFold(value, "true"), nil
		}
	}
	return false, nil
}

// repoConfigValue reads one key from a repository's own configuration
// file. A missing file or key yields an empty value.
func repoConfigValue(path, key string) (string, error) {
	cfg, err := loadConfigFile(path)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg == nil {
		return "", nil
	}
	return lookupKey(cfg, key), nil
}
