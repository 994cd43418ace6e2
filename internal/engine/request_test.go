package engine_test

import (
	"errors"
	"testing"

	"curseward/internal/engine"
	"curseward/internal/repo"
)

func TestAssignCascade(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	sor := seedSorcerer(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID:                 req.ID,
		Status:             "assigning",
		AssignedSorcererID: &sor.ID,
		Urgency:            "urgent",
		ActorID:            "tester",
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Request.Status != "assigning" {
		t.Fatalf("expected assigning, got %s", res.Request.Status)
	}
	if res.Assigning == nil {
		t.Fatalf("expected generated ids")
	}

	m, err := env.Engine.Repo.GetMission(env.Ctx, res.Assigning.MissionID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if m.Status != "pending" || m.Urgency != "urgent" {
		t.Fatalf("unexpected mission %s/%s", m.Status, m.Urgency)
	}
	aic, err := env.Engine.Repo.GetAssignmentInChargeByRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if aic.MissionID != m.ID || aic.SorcererID != sor.ID {
		t.Fatalf("assignment links wrong: %+v", aic)
	}
}

func TestAssignValidation(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	sor := seedSorcerer(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}

	cases := []engine.RequestTransitionOptions{
		{ID: req.ID, Status: "assigning", ActorID: "tester"},
		{ID: req.ID, Status: "assigning", Urgency: "urgent", ActorID: "tester"},
		{ID: req.ID, Status: "assigning", AssignedSorcererID: &sor.ID, ActorID: "tester"},
		{ID: req.ID, Status: "assigning", AssignedSorcererID: &sor.ID, Urgency: "nope", ActorID: "tester"},
	}
	for _, opts := range cases {
		if _, err := env.Engine.TransitionRequest(env.Ctx, opts); err == nil {
			t.Fatalf("expected validation error for %+v", opts)
		}
	}

	// failed attempts must not leave partial rows behind
	var missions, assignments int
	env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM missions`).Scan(&missions)
	env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM assignments_in_charge`).Scan(&assignments)
	if missions != 0 || assignments != 0 {
		t.Fatalf("expected no rows, got %d missions %d assignments", missions, assignments)
	}
	got, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID)
	if err != nil || got.Status != "pending" {
		t.Fatalf("request should still be pending: %v %s", err, got.Status)
	}
}

func TestAssignUnknownSorcerer(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	missing := int64(404)
	_, err = env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID: req.ID, Status: "assigning", AssignedSorcererID: &missing, Urgency: "urgent", ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected error for unknown sorcerer")
	}
}

func TestAssignRevertRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	sor := seedSorcerer(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID: req.ID, Status: "assigning", AssignedSorcererID: &sor.ID, Urgency: "urgent", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	back, err := env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID: req.ID, Status: "pending", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if back.Request.Status != "pending" {
		t.Fatalf("expected pending, got %s", back.Request.Status)
	}
	if back.Request.CurseID != curse.ID {
		t.Fatalf("curse link must survive the round trip")
	}
	if _, err := env.Engine.Repo.GetMission(env.Ctx, res.Assigning.MissionID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected mission gone, got %v", err)
	}
	if _, err := env.Engine.Repo.GetAssignmentInChargeByRequest(env.Ctx, req.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected assignment gone, got %v", err)
	}
}

func TestRequestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	sor := seedSorcerer(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}

	// pending cannot close directly
	_, err = env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{ID: req.ID, Status: "closed", ActorID: "tester"})
	var transition engine.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected transition error, got %v", err)
	}

	// closed is terminal
	_, _ = env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID: req.ID, Status: "assigning", AssignedSorcererID: &sor.ID, Urgency: "urgent", ActorID: "tester",
	})
	if _, err := env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{ID: req.ID, Status: "closed", ActorID: "tester"}); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{ID: req.ID, Status: "pending", ActorID: "tester"})
	if !errors.As(err, &transition) {
		t.Fatalf("expected transition error after close, got %v", err)
	}
}

func TestTransitionRequestNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{ID: 42, Status: "closed", ActorID: "tester"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePendingRequest(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteRequest(env.Ctx, req.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected request gone, got %v", err)
	}
}

func TestDeleteAssigningRequestCancelsMission(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	sor := seedSorcerer(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID: req.ID, Status: "assigning", AssignedSorcererID: &sor.ID, Urgency: "critical", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.Engine.DeleteRequest(env.Ctx, req.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected request gone, got %v", err)
	}
	// the mission survives as canceled history
	m, err := env.Engine.Repo.GetMission(env.Ctx, res.Assigning.MissionID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if m.Status != "canceled" {
		t.Fatalf("expected canceled mission, got %s", m.Status)
	}
	var assignments int
	env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM assignments_in_charge`).Scan(&assignments)
	if assignments != 0 {
		t.Fatalf("expected assignment removed, got %d", assignments)
	}
}
