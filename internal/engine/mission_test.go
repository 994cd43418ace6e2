package engine_test

import (
	"errors"
	"strings"
	"testing"

	"curseward/internal/engine"
)

func TestMissionStartRequiresLocationAndCrew(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	sor := seedSorcerer(t, env)
	m, err := env.Engine.CreateMission(env.Ctx, "urgent", "tester")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "in_progress", SorcererIDs: []int64{sor.ID}, ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected error without location")
	}
	if _, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "in_progress", LocationID: &loc.ID, ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected error without crew")
	}
	got, err := env.Engine.Repo.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != "pending" {
		t.Fatalf("mission should still be pending: %v %s", err, got.Status)
	}
}

func TestMissionStartCreatesAssignments(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	s1 := seedSorcerer(t, env)
	s2, err := env.Engine.RegisterSorcerer(env.Ctx, "Nobara", "three", "active", "tester")
	if err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.CreateMission(env.Ctx, "urgent", "tester")
	if err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID:          m.ID,
		Status:      "in_progress",
		LocationID:  &loc.ID,
		SorcererIDs: []int64{s1.ID, s2.ID},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Mission.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %s", res.Mission.Status)
	}
	if res.InProgress == nil || len(res.InProgress.MissionAssignmentIDs) != 2 {
		t.Fatalf("expected 2 assignment ids, got %+v", res.InProgress)
	}
	if res.Mission.LocationID == nil || *res.Mission.LocationID != loc.ID {
		t.Fatalf("location not recorded")
	}
	rows, err := env.Engine.Repo.ListMissionAssignments(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 assignment rows, got %d", len(rows))
	}
}

func TestMissionStartKeepsDuplicateSorcerers(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	sor := seedSorcerer(t, env)
	m, err := env.Engine.CreateMission(env.Ctx, "urgent", "tester")
	if err != nil {
		t.Fatal(err)
	}

	// the same id twice yields one assignment row per requested id
	res, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID:          m.ID,
		Status:      "in_progress",
		LocationID:  &loc.ID,
		SorcererIDs: []int64{sor.ID, sor.ID},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.InProgress == nil || len(res.InProgress.MissionAssignmentIDs) != 2 {
		t.Fatalf("expected 2 assignment ids, got %+v", res.InProgress)
	}
	rows, err := env.Engine.Repo.ListMissionAssignments(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 assignment rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.SorcererID != sor.ID {
			t.Fatalf("unexpected sorcerer %d", row.SorcererID)
		}
	}
	var payload string
	err = env.Engine.DB.QueryRowContext(env.Ctx, `SELECT payload_json FROM events WHERE type='mission.in_progress'`).Scan(&payload)
	if err != nil {
		t.Fatalf("dispatch event: %v", err)
	}
	if !strings.Contains(payload, `"assignment_count":2`) {
		t.Fatalf("payload missing assignment count: %s", payload)
	}
}

func TestMissionStartRejectsUnknownSorcerer(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	m, err := env.Engine.CreateMission(env.Ctx, "urgent", "tester")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "in_progress", LocationID: &loc.ID, SorcererIDs: []int64{777}, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected unknown sorcerer error")
	}
	var rows int
	env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM mission_assignments`).Scan(&rows)
	if rows != 0 {
		t.Fatalf("expected no assignment rows, got %d", rows)
	}
}

func TestMissionCloseRecordsFields(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	sor := seedSorcerer(t, env)
	m, err := env.Engine.CreateMission(env.Ctx, "critical", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "in_progress", LocationID: &loc.ID, SorcererIDs: []int64{sor.ID}, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID:     m.ID,
		Status: "succeeded",
		Closing: engine.MissionClosingFields{
			Events:           "curse exorcised at the station",
			CollateralDamage: "platform B unusable",
			EndedAt:          "2026-01-01T02:00:00Z",
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("succeed: %v", err)
	}
	got := res.Mission
	if got.Status != "succeeded" || got.Events == "" || got.CollateralDamage == "" {
		t.Fatalf("closing fields not recorded: %+v", got)
	}
	if got.EndedAt == nil || *got.EndedAt != "2026-01-01T02:00:00Z" {
		t.Fatalf("ended_at not recorded")
	}
}

func TestMissionEndedAtValidation(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	sor := seedSorcerer(t, env)
	m, err := env.Engine.CreateMission(env.Ctx, "urgent", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "in_progress", LocationID: &loc.ID, SorcererIDs: []int64{sor.ID}, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	// not RFC3339
	_, err = env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "failed", Closing: engine.MissionClosingFields{EndedAt: "yesterday"}, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected format error")
	}
	// before start
	_, err = env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "failed", Closing: engine.MissionClosingFields{EndedAt: "2025-12-31T00:00:00Z"}, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected ended_at before start error")
	}
	got, err := env.Engine.Repo.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != "in_progress" {
		t.Fatalf("mission should still be in_progress: %v %s", err, got.Status)
	}
}

func TestMissionInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMission(env.Ctx, "urgent", "tester")
	if err != nil {
		t.Fatal(err)
	}
	var transition engine.InvalidTransitionError
	_, err = env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{ID: m.ID, Status: "succeeded", ActorID: "tester"})
	if !errors.As(err, &transition) {
		t.Fatalf("expected transition error, got %v", err)
	}

	loc := seedLocation(t, env)
	sor := seedSorcerer(t, env)
	_, _ = env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "in_progress", LocationID: &loc.ID, SorcererIDs: []int64{sor.ID}, ActorID: "tester",
	})
	if _, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{ID: m.ID, Status: "succeeded", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{ID: m.ID, Status: "in_progress", ActorID: "tester"})
	if !errors.As(err, &transition) {
		t.Fatalf("expected terminal state error, got %v", err)
	}
}

func TestMissionCancelReopensRequest(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	sor := seedSorcerer(t, env)
	loc := seedLocation(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	assigned, err := env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID: req.ID, Status: "assigning", AssignedSorcererID: &sor.ID, Urgency: "urgent", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	missionID := assigned.Assigning.MissionID
	if _, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: missionID, Status: "in_progress", LocationID: &loc.ID, SorcererIDs: []int64{sor.ID}, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: missionID, Status: "canceled", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.ReopenedRequestID == nil || *res.ReopenedRequestID != req.ID {
		t.Fatalf("expected reopened request id %d, got %+v", req.ID, res.ReopenedRequestID)
	}
	got, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "pending" {
		t.Fatalf("expected request reopened to pending, got %s", got.Status)
	}
	var assignments int
	env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM assignments_in_charge`).Scan(&assignments)
	if assignments != 0 {
		t.Fatalf("expected stale assignment removed, got %d", assignments)
	}
}

func TestMissionCancelWithoutRequest(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	sor := seedSorcerer(t, env)
	m, err := env.Engine.CreateMission(env.Ctx, "urgent", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "in_progress", LocationID: &loc.ID, SorcererIDs: []int64{sor.ID}, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.TransitionMission(env.Ctx, engine.MissionTransitionOptions{
		ID: m.ID, Status: "canceled", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.ReopenedRequestID != nil {
		t.Fatalf("standalone mission has no request to reopen")
	}
}
