package engine

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"curseward/internal/config"
	"curseward/internal/domain"
	"curseward/internal/events"
	"curseward/internal/repo"
)

// Engine owns the request and mission lifecycles. The request methods live
// in request.go and the mission methods in mission.go; each method group is
// the sole writer of its own status column. Every cascade runs inside one
// transaction so a partial write can never leave a request pointing at a
// mission that does not exist.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateRequest registers a pending response for a detected curse.
func (e Engine) CreateRequest(ctx context.Context, curseID int64, actorID string) (domain.Request, error) {
	if e.Config == nil {
		return domain.Request{}, errors.New("config not loaded")
	}
	if curseID == 0 {
		return domain.Request{}, ValidationError{Msg: "curse_id is required"}
	}
	if _, err := e.Repo.GetCurse(ctx, curseID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Request{}, ValidationError{Msg: "curse does not exist"}
		}
		return domain.Request{}, err
	}
	now := e.nowString()
	req := domain.Request{
		CurseID:   curseID,
		Status:    StatusRequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertRequestTx(ctx, tx, req)
	if err != nil {
		return domain.Request{}, err
	}
	req.ID = id
	if err := e.Events.Append(ctx, tx, "request.created", "request", formatID(id), actorID, events.EventPayload{"curse_id": curseID}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

// CreateMission is the direct mission creation API, used when a mission is
// dispatched without a request backing it.
func (e Engine) CreateMission(ctx context.Context, urgency, actorID string) (domain.Mission, error) {
	if e.Config == nil {
		return domain.Mission{}, errors.New("config not loaded")
	}
	if urgency == "" {
		urgency = e.Config.Missions.DefaultUrgency
	}
	if !e.Config.HasUrgency(urgency) {
		return domain.Mission{}, ValidationError{Msg: "unknown urgency " + urgency}
	}
	m := domain.Mission{
		Status:    StatusMissionPending,
		Urgency:   urgency,
		StartedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertMissionTx(ctx, tx, m)
	if err != nil {
		return domain.Mission{}, err
	}
	m.ID = id
	if err := e.Events.Append(ctx, tx, "mission.created", "mission", formatID(id), actorID, events.EventPayload{"urgency": urgency}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// formatID renders a rowid for the events table, which stores entity ids as text.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
