package engine

import (
	"context"
	"errors"

	"curseward/internal/domain"
	"curseward/internal/events"
	"curseward/internal/repo"
)

// CreateResource registers a stock item at an optional home location.
func (e Engine) CreateResource(ctx context.Context, name, kind string, quantity int, locationID *int64, actorID string) (domain.Resource, error) {
	if e.Config == nil {
		return domain.Resource{}, errors.New("config not loaded")
	}
	if name == "" {
		return domain.Resource{}, ValidationError{Msg: "name is required"}
	}
	if !e.Config.HasResourceKind(kind) {
		return domain.Resource{}, ValidationError{Msg: "unknown resource kind " + kind}
	}
	if quantity < 0 {
		return domain.Resource{}, ValidationError{Msg: "quantity must not be negative"}
	}
	if locationID != nil {
		if _, err := e.Repo.GetLocation(ctx, *locationID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Resource{}, ValidationError{Msg: "location does not exist"}
			}
			return domain.Resource{}, err
		}
	}
	res := domain.Resource{
		Name:       name,
		Kind:       kind,
		Quantity:   quantity,
		LocationID: locationID,
		CreatedAt:  e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertResourceTx(ctx, tx, res)
	if err != nil {
		return domain.Resource{}, err
	}
	res.ID = id
	if err := e.Events.Append(ctx, tx, "resource.created", "resource", formatID(id), actorID, events.EventPayload{"name": name, "kind": kind}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return res, nil
}

// UpdateResource adjusts quantity and/or home location. Nil fields are left untouched.
func (e Engine) UpdateResource(ctx context.Context, id int64, quantity *int, locationID *int64, actorID string) (domain.Resource, error) {
	if quantity == nil && locationID == nil {
		return domain.Resource{}, ValidationError{Msg: "nothing to update"}
	}
	if quantity != nil && *quantity < 0 {
		return domain.Resource{}, ValidationError{Msg: "quantity must not be negative"}
	}
	if locationID != nil {
		if _, err := e.Repo.GetLocation(ctx, *locationID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Resource{}, ValidationError{Msg: "location does not exist"}
			}
			return domain.Resource{}, err
		}
	}
	payload := events.EventPayload{}
	if quantity != nil {
		payload["quantity"] = *quantity
	}
	if locationID != nil {
		payload["location_id"] = *locationID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateResourceTx(ctx, tx, id, quantity, locationID); err != nil {
		return domain.Resource{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.updated", "resource", formatID(id), actorID, payload); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return e.Repo.GetResource(ctx, id)
}

// TransferResource moves a resource to a destination location. The transfer
// row and the resource's new location are written in the same transaction;
// from_location_id is taken from the resource at the moment of transfer.
func (e Engine) TransferResource(ctx context.Context, resourceID, toLocationID int64, quantity int, actorID string) (domain.Transfer, error) {
	if quantity <= 0 {
		return domain.Transfer{}, ValidationError{Msg: "quantity must be positive"}
	}
	res, err := e.Repo.GetResource(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Transfer{}, ValidationError{Msg: "resource does not exist"}
		}
		return domain.Transfer{}, err
	}
	if quantity > res.Quantity {
		return domain.Transfer{}, ValidationError{Msg: "quantity exceeds stock"}
	}
	if _, err := e.Repo.GetLocation(ctx, toLocationID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Transfer{}, ValidationError{Msg: "location does not exist"}
		}
		return domain.Transfer{}, err
	}
	if res.LocationID != nil && *res.LocationID == toLocationID {
		return domain.Transfer{}, ValidationError{Msg: "resource is already at that location"}
	}
	t := domain.Transfer{
		ResourceID:     resourceID,
		FromLocationID: res.LocationID,
		ToLocationID:   toLocationID,
		Quantity:       quantity,
		TransferredAt:  e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transfer{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertTransferTx(ctx, tx, t)
	if err != nil {
		return domain.Transfer{}, err
	}
	t.ID = id
	if err := e.Repo.SetResourceLocationTx(ctx, tx, resourceID, toLocationID); err != nil {
		return domain.Transfer{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.transferred", "resource", formatID(resourceID), actorID, events.EventPayload{
		"transfer_id":    id,
		"to_location_id": toLocationID,
		"quantity":       quantity,
	}); err != nil {
		return domain.Transfer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Transfer{}, err
	}
	return t, nil
}
