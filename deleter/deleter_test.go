// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package deleter_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	gc "gopkg.in/check.v1"

	"github.com/reviewms/deleteproject/core/project"
	"github.com/reviewms/deleteproject/deleter"
)

type DeleterSuite struct {
	testing.IsolationSuite
	fix fixture
}

var _ = gc.Suite(&DeleterSuite{})

func (s *DeleterSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.fix = fixture{taskID: "aaaa-bbbb"}
}

// checkAuditedOnce asserts that exactly one audit record was written,
// as the last thing the coordinator did, carrying opErr.
func (s *DeleterSuite) checkAuditedOnce(c *gc.C, opErr error) {
	calls := s.fix.stub.Calls()
	c.Assert(calls, gc.Not(gc.HasLen), 0)
	var audits int
	for _, call := range calls {
		if call.FuncName == "OnDelete" {
			audits++
		}
	}
	c.Check(audits, gc.Equals, 1)
	last := calls[len(calls)-1]
	c.Check(last.FuncName, gc.Equals, "OnDelete")
	if opErr == nil {
		c.Check(last.Args[3], gc.IsNil)
	} else {
		c.Check(last.Args[3], gc.Equals, opErr)
	}
}

func (s *DeleterSuite) TestNonReplicatedOrder(c *gc.C) {
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"DatabaseDelete",
		"FilesystemDelete",
		"CacheDelete",
		"OnDelete",
	)
	s.fix.stub.CheckCall(c, 2, "FilesystemDelete", project.Name("foo"), false)
	s.checkAuditedOnce(c, nil)
}

func (s *DeleterSuite) TestNonReplicatedPreserveWithoutHiding(c *gc.C) {
	err := s.fix.run(c, project.DeleteRequest{Preserve: true})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"DatabaseDelete",
		"FilesystemDelete",
		"CacheDelete",
		"OnDelete",
	)
	s.fix.stub.CheckCall(c, 2, "FilesystemDelete", project.Name("foo"), true)
}

func (s *DeleterSuite) TestNonReplicatedRepositoryNotFound(c *gc.C) {
	notFound := errors.NotFoundf("repository of %q", "foo")
	s.fix.stub.SetErrors(nil, nil, notFound)
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"DatabaseDelete",
		"FilesystemDelete",
		"OnDelete",
	)
	s.checkAuditedOnce(c, err)
}

func (s *DeleterSuite) TestNonReplicatedDatabaseFailureAborts(c *gc.C) {
	s.fix.stub.SetErrors(nil, errors.New("pow"))
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, gc.ErrorMatches, `deleting review history of "foo": pow`)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"DatabaseDelete",
		"OnDelete",
	)
	s.checkAuditedOnce(c, err)
}

func (s *DeleterSuite) TestNonReplicatedChangeDatabaseDisabled(c *gc.C) {
	s.fix.changeDBDisabled = true
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"FilesystemDelete",
		"CacheDelete",
		"OnDelete",
	)
}

func (s *DeleterSuite) TestPreserveHidesWhenConfigured(c *gc.C) {
	s.fix.hideOnPreserve = true
	err := s.fix.run(c, project.DeleteRequest{Preserve: true})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"Hide",
		"OnDelete",
	)
}

func (s *DeleterSuite) TestPreserveHidesWhenConfiguredReplicated(c *gc.C) {
	s.fix.replicated = true
	s.fix.hideOnPreserve = true
	err := s.fix.run(c, project.DeleteRequest{Preserve: true})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"Hide",
		"OnDelete",
	)
}

func (s *DeleterSuite) TestHideFailureStillAudited(c *gc.C) {
	s.fix.hideOnPreserve = true
	s.fix.stub.SetErrors(nil, errors.New("pow"))
	err := s.fix.run(c, project.DeleteRequest{Preserve: true})
	c.Assert(err, gc.ErrorMatches, "pow")
	s.checkAuditedOnce(c, err)
}

func (s *DeleterSuite) TestProbeFailureAssumesNonReplicated(c *gc.C) {
	s.fix.replicated = true
	s.fix.stub.SetErrors(errors.New("config gone"))
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"DatabaseDelete",
		"FilesystemDelete",
		"CacheDelete",
		"OnDelete",
	)
}

func (s *DeleterSuite) TestReplicatedOrder(c *gc.C) {
	s.fix.replicated = true
	s.fix.changes = []project.ChangeRecord{
		{ID: 101, Project: "foo"},
		{ID: 205, Project: "foo"},
	}
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"ScheduleRemoval",
		"ReplicatedDeleteChanges",
		"DeleteFromCache",
		"CacheDelete",
		"ReplicateChangeDeletion",
		"ReplicateProjectDeletion",
		"OnDelete",
	)
	s.fix.stub.CheckCall(c, 1, "ScheduleRemoval", project.Name("foo"), "aaaa-bbbb")
	s.fix.stub.CheckCall(c, 5, "ReplicateChangeDeletion",
		project.Name("foo"), []project.ChangeID{101, 205}, false)
	s.fix.stub.CheckCall(c, 6, "ReplicateProjectDeletion", project.Name("foo"), false, "aaaa-bbbb")
	s.checkAuditedOnce(c, nil)
}

func (s *DeleterSuite) TestReplicatedTaskIDGenerated(c *gc.C) {
	s.fix.replicated = true
	s.fix.taskID = ""
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIsNil)
	calls := s.fix.stub.Calls()
	c.Assert(calls[1].FuncName, gc.Equals, "ScheduleRemoval")
	scheduled := calls[1].Args[1].(string)
	c.Check(scheduled, gc.Not(gc.Equals), "")
	broadcast := calls[len(calls)-2]
	c.Assert(broadcast.FuncName, gc.Equals, "ReplicateProjectDeletion")
	c.Check(broadcast.Args[2], gc.Equals, scheduled)
}

func (s *DeleterSuite) TestReplicatedPreserveSkipsArchiveAndCache(c *gc.C) {
	s.fix.replicated = true
	s.fix.changes = []project.ChangeRecord{{ID: 33, Project: "foo"}}
	err := s.fix.run(c, project.DeleteRequest{Preserve: true})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"ReplicatedDeleteChanges",
		"DeleteFromCache",
		"ReplicateChangeDeletion",
		"ReplicateProjectDeletion",
		"OnDelete",
	)
	s.fix.stub.CheckCall(c, 4, "ReplicateProjectDeletion", project.Name("foo"), true, "aaaa-bbbb")
}

func (s *DeleterSuite) TestReplicatedNoChangesNoChangeBroadcast(c *gc.C) {
	s.fix.replicated = true
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIsNil)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"ScheduleRemoval",
		"ReplicatedDeleteChanges",
		"DeleteFromCache",
		"CacheDelete",
		"ReplicateProjectDeletion",
		"OnDelete",
	)
}

func (s *DeleterSuite) TestReplicatedConflictAborts(c *gc.C) {
	s.fix.replicated = true
	s.fix.stub.SetErrors(nil, nil, deleter.ErrConcurrentUpdate)
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIs, deleter.ErrConcurrentUpdate)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"ScheduleRemoval",
		"ReplicatedDeleteChanges",
		"OnDelete",
	)
	s.checkAuditedOnce(c, err)
}

func (s *DeleterSuite) TestReplicatedArchiveFailureAborts(c *gc.C) {
	s.fix.replicated = true
	s.fix.stub.SetErrors(nil, errors.New("daemon refused"))
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, gc.ErrorMatches, `archiving repository of "foo": daemon refused`)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"ScheduleRemoval",
		"OnDelete",
	)
	s.checkAuditedOnce(c, err)
}

func (s *DeleterSuite) TestReplicatedRepositoryNotFound(c *gc.C) {
	s.fix.replicated = true
	s.fix.stub.SetErrors(nil, nil, nil, errors.NotFoundf("repository"))
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	s.fix.stub.CheckCallNames(c,
		"IsReplicated",
		"ScheduleRemoval",
		"ReplicatedDeleteChanges",
		"DeleteFromCache",
		"OnDelete",
	)
}

func (s *DeleterSuite) TestReplicatedBroadcastFailureStillAudited(c *gc.C) {
	s.fix.replicated = true
	s.fix.stub.SetErrors(nil, nil, nil, nil, nil, errors.New("peers unreachable"))
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, gc.ErrorMatches, "peers unreachable")
	s.checkAuditedOnce(c, err)
}

func (s *DeleterSuite) TestMetricsObserved(c *gc.C) {
	err := s.fix.run(c, project.DeleteRequest{})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(promtestutil.ToFloat64(s.fix.metrics), gc.Equals, 1.0)
}

func (s *DeleterSuite) TestValidate(c *gc.C) {
	_, err := deleter.New(deleter.Config{})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
	c.Assert(err, gc.ErrorMatches, "nil Database not valid")
}
