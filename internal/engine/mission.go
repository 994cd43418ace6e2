package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"curseward/internal/domain"
	"curseward/internal/events"
	"curseward/internal/repo"
)

// MissionClosingFields are the optional fields recorded on a terminal
// transition. EndedAt, when supplied, must parse as RFC3339 and fall
// strictly after the mission's start.
type MissionClosingFields struct {
	Events           string
	CollateralDamage string
	EndedAt          string
}

// MissionTransitionOptions are parameters for a mission status transition.
type MissionTransitionOptions struct {
	ID          int64
	Status      string
	LocationID  *int64
	SorcererIDs []int64
	Closing     MissionClosingFields
	ActorID     string
}

// MissionInProgressResult carries the assignment identifiers generated by a
// pending -> in_progress cascade, one per requested sorcerer id.
type MissionInProgressResult struct {
	MissionAssignmentIDs []int64 `json:"missionAssignmentIds"`
}

// MissionTransitionResult is the tagged outcome of TransitionMission.
type MissionTransitionResult struct {
	Mission           domain.Mission
	InProgress        *MissionInProgressResult
	ReopenedRequestID *int64
}

func ensureMissionTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case StatusMissionPending:
		if newStatus == StatusMissionInProgress {
			return nil
		}
	case StatusMissionInProgress:
		if newStatus == StatusMissionSucceeded || newStatus == StatusMissionFailed || newStatus == StatusMissionCanceled {
			return nil
		}
	}
	return InvalidTransitionError{Entity: "mission", From: oldStatus, To: newStatus}
}

// TransitionMission moves a mission through its state machine.
// pending -> in_progress records the location and the crew; the terminal
// transitions record closing fields, and canceled additionally hands the
// originating request back to the request manager's reopening path.
func (e Engine) TransitionMission(ctx context.Context, opts MissionTransitionOptions) (MissionTransitionResult, error) {
	if e.Config == nil {
		return MissionTransitionResult{}, errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MissionTransitionResult{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, opts.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return MissionTransitionResult{}, fmt.Errorf("mission %d: %w", opts.ID, repo.ErrNotFound)
		}
		return MissionTransitionResult{}, err
	}
	if err := ensureMissionTransition(m.Status, opts.Status); err != nil {
		return MissionTransitionResult{}, err
	}

	var result MissionTransitionResult
	switch opts.Status {
	case StatusMissionInProgress:
		inProgress, err := e.beginInProgress(ctx, tx, &m, opts)
		if err != nil {
			return MissionTransitionResult{}, err
		}
		result.InProgress = inProgress
	case StatusMissionSucceeded, StatusMissionFailed:
		// closing fields stay optional here; callers are expected to supply
		// events and collateral damage but the transition does not hard-fail
		// without them
		m, err = e.closeMissionTx(ctx, tx, m, opts.Status, opts.Closing, opts.ActorID)
		if err != nil {
			return MissionTransitionResult{}, err
		}
	case StatusMissionCanceled:
		m, err = e.closeMissionTx(ctx, tx, m, StatusMissionCanceled, opts.Closing, opts.ActorID)
		if err != nil {
			return MissionTransitionResult{}, err
		}
		aic, err := e.Repo.GetAssignmentInChargeByMissionTx(ctx, tx, m.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return MissionTransitionResult{}, err
		}
		if err == nil {
			if err := e.reopenRequestForMissionCancel(ctx, tx, aic, opts.ActorID); err != nil {
				return MissionTransitionResult{}, err
			}
			result.ReopenedRequestID = &aic.RequestID
		}
	}

	if err := tx.Commit(); err != nil {
		return MissionTransitionResult{}, err
	}
	result.Mission = m
	return result, nil
}

// beginInProgress validates and records the dispatch: a location and a
// non-empty crew. Duplicate sorcerer ids are kept as-is, one assignment row
// per requested id.
func (e Engine) beginInProgress(ctx context.Context, tx *sql.Tx, m *domain.Mission, opts MissionTransitionOptions) (*MissionInProgressResult, error) {
	if opts.LocationID == nil || len(opts.SorcererIDs) == 0 {
		return nil, ValidationError{Msg: "location_id and sorcerer_ids are required"}
	}
	if _, err := e.Repo.GetLocation(ctx, *opts.LocationID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ValidationError{Msg: "location does not exist"}
		}
		return nil, err
	}
	for _, sid := range opts.SorcererIDs {
		if _, err := e.Repo.GetSorcerer(ctx, sid); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ValidationError{Msg: fmt.Sprintf("sorcerer %d does not exist", sid)}
			}
			return nil, err
		}
	}

	now := e.nowString()
	ids := make([]int64, 0, len(opts.SorcererIDs))
	for _, sid := range opts.SorcererIDs {
		id, err := e.Repo.InsertMissionAssignmentTx(ctx, tx, domain.MissionAssignment{
			MissionID:  m.ID,
			SorcererID: sid,
			CreatedAt:  now,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	m.LocationID = opts.LocationID
	m.Status = StatusMissionInProgress
	if err := e.Repo.UpdateMissionTx(ctx, tx, *m); err != nil {
		return nil, err
	}
	// recount inside the tx so the event reflects the rows actually written
	crewed, err := e.Repo.CountMissionAssignmentsTx(ctx, tx, m.ID)
	if err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "mission.in_progress", "mission", formatID(m.ID), opts.ActorID, events.EventPayload{
		"location_id":      *opts.LocationID,
		"sorcerer_ids":     opts.SorcererIDs,
		"assignment_count": crewed,
	}); err != nil {
		return nil, err
	}
	return &MissionInProgressResult{MissionAssignmentIDs: ids}, nil
}

// closeMissionTx writes a terminal status and the closing fields. It is the
// single closing path: the request delete cascade reuses it with empty
// fields when it forces a cancel.
func (e Engine) closeMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission, status string, f MissionClosingFields, actorID string) (domain.Mission, error) {
	if f.EndedAt != "" {
		endedAt, err := time.Parse(time.RFC3339, f.EndedAt)
		if err != nil {
			return m, ValidationError{Msg: "ended_at must be RFC3339"}
		}
		startedAt, err := time.Parse(time.RFC3339, m.StartedAt)
		if err != nil {
			return m, fmt.Errorf("parse mission %d started_at: %w", m.ID, err)
		}
		if !endedAt.After(startedAt) {
			return m, ValidationError{Msg: "ended_at must be after started_at"}
		}
		m.EndedAt = &f.EndedAt
	}
	if f.Events != "" {
		m.Events = f.Events
	}
	if f.CollateralDamage != "" {
		m.CollateralDamage = f.CollateralDamage
	}
	m.Status = status
	if err := e.Repo.UpdateMissionTx(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "mission."+status, "mission", formatID(m.ID), actorID, events.EventPayload{
		"events":            f.Events,
		"collateral_damage": f.CollateralDamage,
	}); err != nil {
		return m, err
	}
	return m, nil
}
