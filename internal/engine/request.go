package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"curseward/internal/domain"
	"curseward/internal/events"
	"curseward/internal/repo"
)

// RequestTransitionOptions are parameters for a request status transition.
type RequestTransitionOptions struct {
	ID                 int64
	Status             string
	AssignedSorcererID *int64
	Urgency            string
	ActorID            string
}

// RequestAssigningResult carries the identifiers generated by a
// pending -> assigning cascade.
type RequestAssigningResult struct {
	MissionID    int64 `json:"missionId"`
	AssignmentID int64 `json:"assignmentId"`
}

// RequestTransitionResult is the tagged outcome of TransitionRequest.
// Assigning is non-nil only for the pending -> assigning cascade.
type RequestTransitionResult struct {
	Request   domain.Request
	Assigning *RequestAssigningResult
}

// TransitionRequest moves a request through its state machine. The
// pending -> assigning cascade creates the mission and the assignment in
// charge; assigning -> pending reverses that creation; assigning -> closed
// is a plain status update. The current status is re-read inside the
// transaction so two callers racing on the same request cannot both observe
// the same pre-state.
func (e Engine) TransitionRequest(ctx context.Context, opts RequestTransitionOptions) (RequestTransitionResult, error) {
	if e.Config == nil {
		return RequestTransitionResult{}, errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return RequestTransitionResult{}, err
	}
	defer tx.Rollback()

	req, err := e.Repo.GetRequestTx(ctx, tx, opts.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return RequestTransitionResult{}, fmt.Errorf("request %d: %w", opts.ID, repo.ErrNotFound)
		}
		return RequestTransitionResult{}, err
	}

	var result RequestTransitionResult
	switch {
	case req.Status == StatusRequestPending && opts.Status == StatusRequestAssigning:
		assigning, err := e.beginAssigning(ctx, tx, &req, opts)
		if err != nil {
			return RequestTransitionResult{}, err
		}
		result.Assigning = assigning
	case req.Status == StatusRequestAssigning && opts.Status == StatusRequestPending:
		if err := e.revertAssigning(ctx, tx, &req, opts.ActorID); err != nil {
			return RequestTransitionResult{}, err
		}
	case req.Status == StatusRequestAssigning && opts.Status == StatusRequestClosed:
		req.UpdatedAt = e.nowString()
		if err := e.Repo.UpdateRequestStatusTx(ctx, tx, req.ID, StatusRequestClosed, req.UpdatedAt); err != nil {
			return RequestTransitionResult{}, err
		}
		req.Status = StatusRequestClosed
		if err := e.Events.Append(ctx, tx, "request.closed", "request", formatID(req.ID), opts.ActorID, events.EventPayload{}); err != nil {
			return RequestTransitionResult{}, err
		}
	default:
		return RequestTransitionResult{}, InvalidTransitionError{Entity: "request", From: req.Status, To: opts.Status}
	}

	if err := tx.Commit(); err != nil {
		return RequestTransitionResult{}, err
	}
	result.Request = req
	return result, nil
}

// beginAssigning performs the pending -> assigning cascade: create a pending
// mission with the given urgency, link request, mission and sorcerer through
// an assignment in charge, then flip the request status.
func (e Engine) beginAssigning(ctx context.Context, tx *sql.Tx, req *domain.Request, opts RequestTransitionOptions) (*RequestAssigningResult, error) {
	if opts.AssignedSorcererID == nil && opts.Urgency == "" {
		return nil, ValidationError{Msg: "assigned_sorcerer_id and urgency are required"}
	}
	if opts.AssignedSorcererID == nil {
		return nil, ValidationError{Msg: "assigned_sorcerer_id is required"}
	}
	if opts.Urgency == "" {
		return nil, ValidationError{Msg: "urgency is required"}
	}
	if !e.Config.HasUrgency(opts.Urgency) {
		return nil, ValidationError{Msg: "unknown urgency " + opts.Urgency}
	}
	if _, err := e.Repo.GetSorcerer(ctx, *opts.AssignedSorcererID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ValidationError{Msg: "sorcerer does not exist"}
		}
		return nil, err
	}

	now := e.nowString()
	missionID, err := e.Repo.InsertMissionTx(ctx, tx, domain.Mission{
		Status:    StatusMissionPending,
		Urgency:   opts.Urgency,
		StartedAt: now,
	})
	if err != nil {
		return nil, err
	}
	assignmentID, err := e.Repo.InsertAssignmentInChargeTx(ctx, tx, domain.AssignmentInCharge{
		RequestID:  req.ID,
		MissionID:  missionID,
		SorcererID: *opts.AssignedSorcererID,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	req.UpdatedAt = now
	if err := e.Repo.UpdateRequestStatusTx(ctx, tx, req.ID, StatusRequestAssigning, now); err != nil {
		return nil, err
	}
	req.Status = StatusRequestAssigning
	if err := e.Events.Append(ctx, tx, "request.assigning", "request", formatID(req.ID), opts.ActorID, events.EventPayload{
		"mission_id":    missionID,
		"assignment_id": assignmentID,
		"sorcerer_id":   *opts.AssignedSorcererID,
		"urgency":       opts.Urgency,
	}); err != nil {
		return nil, err
	}
	return &RequestAssigningResult{MissionID: missionID, AssignmentID: assignmentID}, nil
}

// revertAssigning undoes the assigning cascade: the generated mission and
// assignment in charge are removed and the request returns to pending. The
// curse reference is untouched, so assign-then-revert is a net no-op on the
// request apart from its timestamps.
func (e Engine) revertAssigning(ctx context.Context, tx *sql.Tx, req *domain.Request, actorID string) error {
	aic, err := e.Repo.GetAssignmentInChargeByRequestTx(ctx, tx, req.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return InvariantViolationError{Msg: fmt.Sprintf("request %d is assigning but has no assignment in charge", req.ID)}
		}
		return err
	}
	// assignment row references the mission, so it goes first
	if err := e.Repo.DeleteAssignmentInChargeTx(ctx, tx, aic.ID); err != nil {
		return err
	}
	if err := e.Repo.DeleteMissionTx(ctx, tx, aic.MissionID); err != nil {
		return err
	}
	req.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateRequestStatusTx(ctx, tx, req.ID, StatusRequestPending, req.UpdatedAt); err != nil {
		return err
	}
	req.Status = StatusRequestPending
	return e.Events.Append(ctx, tx, "request.reverted", "request", formatID(req.ID), actorID, events.EventPayload{
		"mission_id":    aic.MissionID,
		"assignment_id": aic.ID,
	})
}

// DeleteRequest removes a request. A pending request is a plain delete. An
// assigning request first has its mission canceled through the mission
// closing path (with empty closing fields) and its assignment in charge
// removed, all inside one transaction. Deleting a closed request removes the
// request and its assignment rows but keeps the mission as history.
func (e Engine) DeleteRequest(ctx context.Context, id int64, actorID string) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := e.Repo.GetRequestTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("request %d: %w", id, repo.ErrNotFound)
		}
		return err
	}

	if req.Status == StatusRequestAssigning {
		aic, err := e.Repo.GetAssignmentInChargeByRequestTx(ctx, tx, req.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return InvariantViolationError{Msg: fmt.Sprintf("request %d is assigning but has no assignment in charge", req.ID)}
			}
			return err
		}
		mission, err := e.Repo.GetMissionTx(ctx, tx, aic.MissionID)
		if err != nil {
			return err
		}
		if _, err := e.closeMissionTx(ctx, tx, mission, StatusMissionCanceled, MissionClosingFields{}, actorID); err != nil {
			return err
		}
		if err := e.Repo.DeleteAssignmentInChargeTx(ctx, tx, aic.ID); err != nil {
			return err
		}
	}

	if err := e.Repo.DeleteRequestTx(ctx, tx, req.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "request.deleted", "request", formatID(req.ID), actorID, events.EventPayload{
		"status": req.Status,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// reopenRequestForMissionCancel is the request manager's reopening path,
// invoked by the mission lifecycle when a mission is canceled underneath an
// assigning request. The request returns to pending so the curse can be
// re-attempted; the stale assignment in charge is removed with it. The
// canceled mission row stays as history.
func (e Engine) reopenRequestForMissionCancel(ctx context.Context, tx *sql.Tx, aic domain.AssignmentInCharge, actorID string) error {
	req, err := e.Repo.GetRequestTx(ctx, tx, aic.RequestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return InvariantViolationError{Msg: fmt.Sprintf("assignment %d references missing request %d", aic.ID, aic.RequestID)}
		}
		return err
	}
	if req.Status != StatusRequestAssigning {
		// request already closed or reverted on its own; nothing to reopen
		return nil
	}
	if err := e.Repo.DeleteAssignmentInChargeTx(ctx, tx, aic.ID); err != nil {
		return err
	}
	if err := e.Repo.UpdateRequestStatusTx(ctx, tx, req.ID, StatusRequestPending, e.nowString()); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "request.reopened", "request", formatID(req.ID), actorID, events.EventPayload{
		"mission_id": aic.MissionID,
	})
}
