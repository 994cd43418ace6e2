package engine

import (
	"context"
	"errors"

	"curseward/internal/domain"
	"curseward/internal/events"
	"curseward/internal/repo"
)

// RegisterSorcerer adds a sorcerer to the registry. Grade must be one of the
// configured catalog entries; status defaults to active.
func (e Engine) RegisterSorcerer(ctx context.Context, name, grade, status, actorID string) (domain.Sorcerer, error) {
	if e.Config == nil {
		return domain.Sorcerer{}, errors.New("config not loaded")
	}
	if name == "" {
		return domain.Sorcerer{}, ValidationError{Msg: "name is required"}
	}
	if !e.Config.HasGrade(grade) {
		return domain.Sorcerer{}, ValidationError{Msg: "unknown grade " + grade}
	}
	if status == "" {
		status = "active"
	}
	s := domain.Sorcerer{
		Name:      name,
		Grade:     grade,
		Status:    status,
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sorcerer{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertSorcererTx(ctx, tx, s)
	if err != nil {
		return domain.Sorcerer{}, err
	}
	s.ID = id
	if err := e.Events.Append(ctx, tx, "sorcerer.registered", "sorcerer", formatID(id), actorID, events.EventPayload{"name": name, "grade": grade}); err != nil {
		return domain.Sorcerer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sorcerer{}, err
	}
	return s, nil
}

// UpdateSorcerer changes grade and/or status. Nil fields are left untouched.
func (e Engine) UpdateSorcerer(ctx context.Context, id int64, grade, status *string, actorID string) (domain.Sorcerer, error) {
	if grade == nil && status == nil {
		return domain.Sorcerer{}, ValidationError{Msg: "nothing to update"}
	}
	if grade != nil && !e.Config.HasGrade(*grade) {
		return domain.Sorcerer{}, ValidationError{Msg: "unknown grade " + *grade}
	}
	payload := events.EventPayload{}
	if grade != nil {
		payload["grade"] = *grade
	}
	if status != nil {
		payload["status"] = *status
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sorcerer{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSorcererTx(ctx, tx, id, grade, status); err != nil {
		return domain.Sorcerer{}, err
	}
	if err := e.Events.Append(ctx, tx, "sorcerer.updated", "sorcerer", formatID(id), actorID, payload); err != nil {
		return domain.Sorcerer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sorcerer{}, err
	}
	return e.Repo.GetSorcerer(ctx, id)
}

// RegisterCurse records a detected curse, optionally pinned to a location.
func (e Engine) RegisterCurse(ctx context.Context, name, grade string, locationID *int64, actorID string) (domain.Curse, error) {
	if e.Config == nil {
		return domain.Curse{}, errors.New("config not loaded")
	}
	if name == "" {
		return domain.Curse{}, ValidationError{Msg: "name is required"}
	}
	if !e.Config.HasGrade(grade) {
		return domain.Curse{}, ValidationError{Msg: "unknown grade " + grade}
	}
	if locationID != nil {
		if _, err := e.Repo.GetLocation(ctx, *locationID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Curse{}, ValidationError{Msg: "location does not exist"}
			}
			return domain.Curse{}, err
		}
	}
	c := domain.Curse{
		Name:       name,
		Grade:      grade,
		LocationID: locationID,
		Status:     "detected",
		DetectedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Curse{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertCurseTx(ctx, tx, c)
	if err != nil {
		return domain.Curse{}, err
	}
	c.ID = id
	if err := e.Events.Append(ctx, tx, "curse.detected", "curse", formatID(id), actorID, events.EventPayload{"name": name, "grade": grade}); err != nil {
		return domain.Curse{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Curse{}, err
	}
	return c, nil
}

// MarkCurseExorcised flips a curse from detected to exorcised.
func (e Engine) MarkCurseExorcised(ctx context.Context, id int64, actorID string) (domain.Curse, error) {
	c, err := e.Repo.GetCurse(ctx, id)
	if err != nil {
		return domain.Curse{}, err
	}
	if c.Status == "exorcised" {
		return domain.Curse{}, InvalidTransitionError{Entity: "curse", From: c.Status, To: "exorcised"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Curse{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCurseStatusTx(ctx, tx, id, "exorcised"); err != nil {
		return domain.Curse{}, err
	}
	c.Status = "exorcised"
	if err := e.Events.Append(ctx, tx, "curse.exorcised", "curse", formatID(id), actorID, nil); err != nil {
		return domain.Curse{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Curse{}, err
	}
	return c, nil
}

// CreateLocation registers a named site.
func (e Engine) CreateLocation(ctx context.Context, name, prefecture, actorID string) (domain.Location, error) {
	if name == "" {
		return domain.Location{}, ValidationError{Msg: "name is required"}
	}
	l := domain.Location{
		Name:       name,
		Prefecture: prefecture,
		CreatedAt:  e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Location{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertLocationTx(ctx, tx, l)
	if err != nil {
		return domain.Location{}, err
	}
	l.ID = id
	if err := e.Events.Append(ctx, tx, "location.created", "location", formatID(id), actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Location{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Location{}, err
	}
	return l, nil
}

// CreateTechnique records a cursed technique for an existing sorcerer.
func (e Engine) CreateTechnique(ctx context.Context, sorcererID int64, name, description, actorID string) (domain.Technique, error) {
	if name == "" {
		return domain.Technique{}, ValidationError{Msg: "name is required"}
	}
	if _, err := e.Repo.GetSorcerer(ctx, sorcererID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Technique{}, ValidationError{Msg: "sorcerer does not exist"}
		}
		return domain.Technique{}, err
	}
	t := domain.Technique{
		SorcererID:  sorcererID,
		Name:        name,
		Description: description,
		CreatedAt:   e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Technique{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertTechniqueTx(ctx, tx, t)
	if err != nil {
		return domain.Technique{}, err
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "technique.created", "technique", formatID(id), actorID, events.EventPayload{"sorcerer_id": sorcererID, "name": name}); err != nil {
		return domain.Technique{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Technique{}, err
	}
	return t, nil
}
