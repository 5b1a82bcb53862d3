// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package replication contains the replication-facing pieces of project
// deletion: the status probe that decides whether a repository is
// replicated, the requester that asks the local replication daemon to
// archive and later remove a repository, and the broadcasters that
// propagate deletions to peer nodes.
package replication

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/ini.v1"
)

var logger = loggo.GetLogger("deleteproject.replication")

const (
	// ConfigEnvVar overrides the location of the replication daemon
	// configuration file.
	ConfigEnvVar = "GIT_CONFIG"

	// defaultConfigFile is the per-user daemon configuration file used
	// when no override is set.
	defaultConfigFile = ".gitconfig"

	// The daemon configuration points at a properties file via this
	// section/key pair.
	daemonConfigSection = "core"
	daemonConfigKey     = "gitmsconfig"

	// Keys read from the properties file.
	repoRootKey   = "gerrit.repo.home"
	daemonPortKey = "gitms.local.jetty.port"

	// repoSuffix is the implicit suffix of repository directories.
	repoSuffix = ".git"
)

// ErrConfigUnreadable indicates that one of the chained configuration
// files exists but cannot be parsed.
const ErrConfigUnreadable = errors.ConstError("replication configuration unreadable")

// Source locates the replication daemon configuration. It is resolved
// once at process start and injected wherever the chained lookup is
// needed, so tests can point it at fixture files.
type Source struct {
	// Path is the location of the daemon configuration file. An empty
	// path means the host carries no replication configuration at all.
	Path string
}

// SourceFromEnviron resolves the daemon configuration location from the
// process environment.
func SourceFromEnviron() Source {
	if path := os.Getenv(ConfigEnvVar); path != "" {
		return Source{Path: path}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Warningf("cannot determine home directory: %v", err)
		return Source{}
	}
	return Source{Path: filepath.Join(home, defaultConfigFile)}
}

// Properties holds the daemon settings reachable through the chained
// lookup: daemon config -> properties file.
type Properties struct {
	// RepoRoot is the path under which all repositories live.
	RepoRoot string

	// DaemonPort is the host-local port the replication daemon
	// listens on.
	DaemonPort string
}

// Properties performs the chained configuration lookup. Any level being
// absent degrades to zero values; only a file that exists but cannot be
// read fails, with ErrConfigUnreadable.
func (s Source) Properties() (Properties, error) {
	var props Properties
	if s.Path == "" {
		return props, nil
	}
	daemonCfg, err := loadConfigFile(s.Path)
	if err != nil {
		return props, errors.Trace(err)
	}
	if daemonCfg == nil {
		return props, nil
	}
	propsPath := daemonCfg.Section(daemonConfigSection).Key(daemonConfigKey).String()
	if propsPath == "" {
		return props, nil
	}
	propsCfg, err := loadConfigFile(propsPath)
	if err != nil {
		return props, errors.Trace(err)
	}
	if propsCfg == nil {
		return props, nil
	}
	props.RepoRoot = lookupKey(propsCfg, repoRootKey)
	props.DaemonPort = lookupKey(propsCfg, daemonPortKey)
	return props, nil
}

// loadConfigFile parses the file at path. A missing file is reported as
// (nil, nil); a file that cannot be parsed is a hard failure.
func loadConfigFile(path string) (*ini.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %v%w", path, err, errors.Hide(ErrConfigUnreadable))
	}
	return cfg, nil
}

// lookupKey finds the named key in any section of the file. Properties
// files have no sections while repository configs nest their keys, so
// both shapes are searched.
func lookupKey(cfg *ini.File, key string) string {
	for _, section := range cfg.Sections() {
		if section.HasKey(key) {
			return section.Key(key).String()
		}
	}
	return ""
}
