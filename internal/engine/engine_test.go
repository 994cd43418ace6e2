package engine_test

import (
	"context"
	"testing"
	"time"

	"curseward/internal/config"
	"curseward/internal/db"
	"curseward/internal/domain"
	"curseward/internal/engine"
	"curseward/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("tokyo-registry")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedSorcerer(t *testing.T, env testEnv) domain.Sorcerer {
	t.Helper()
	s, err := env.Engine.RegisterSorcerer(env.Ctx, "Megumi", "two", "active", "tester")
	if err != nil {
		t.Fatalf("seed sorcerer: %v", err)
	}
	return s
}

func seedLocation(t *testing.T, env testEnv) domain.Location {
	t.Helper()
	l, err := env.Engine.CreateLocation(env.Ctx, "Shibuya Station", "Tokyo", "tester")
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}
	return l
}

func seedCurse(t *testing.T, env testEnv) domain.Curse {
	t.Helper()
	loc := seedLocation(t, env)
	c, err := env.Engine.RegisterCurse(env.Ctx, "Finger Bearer", "special", &loc.ID, "tester")
	if err != nil {
		t.Fatalf("seed curse: %v", err)
	}
	return c
}

func TestCreateRequestRequiresExistingCurse(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateRequest(env.Ctx, 99, "tester")
	if err == nil {
		t.Fatalf("expected error for missing curse")
	}
	var count int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM requests`).Scan(&count); err != nil {
		t.Fatalf("count requests: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no request rows, got %d", count)
	}
}

func TestCreateRequestStartsPending(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != "pending" {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if req.CurseID != curse.ID {
		t.Fatalf("expected curse %d, got %d", curse.ID, req.CurseID)
	}
}

func TestCreateMissionDefaultsUrgency(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMission(env.Ctx, "", "tester")
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if m.Urgency != "planned" {
		t.Fatalf("expected default urgency planned, got %s", m.Urgency)
	}
	if m.Status != "pending" {
		t.Fatalf("expected pending, got %s", m.Status)
	}
}

func TestCreateMissionRejectsUnknownUrgency(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateMission(env.Ctx, "apocalyptic", "tester")
	if err == nil {
		t.Fatalf("expected urgency validation error")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	sor := seedSorcerer(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, curse.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.TransitionRequest(env.Ctx, engine.RequestTransitionOptions{
		ID: req.ID, Status: "assigning", AssignedSorcererID: &sor.ID, Urgency: "urgent", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_kind='request'`)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 2 {
		t.Fatalf("expected created and assigning events, got %d", count)
	}
}
