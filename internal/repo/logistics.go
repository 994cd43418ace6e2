package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"curseward/internal/domain"
)

// Resources and transfers. A transfer is a plain record of stock moving
// between locations; it adjusts the resource's location but has no
// lifecycle of its own.

func (r Repo) InsertResourceTx(ctx context.Context, tx *sql.Tx, res domain.Resource) (int64, error) {
	result, err := tx.ExecContext(ctx, `INSERT INTO resources(name,kind,quantity,location_id,created_at) VALUES (?,?,?,?,?)`,
		res.Name, res.Kind, res.Quantity, nullableInt64Ptr(res.LocationID), res.CreatedAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (r Repo) GetResource(ctx context.Context, id int64) (domain.Resource, error) {
	var res domain.Resource
	var locationID sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,kind,quantity,location_id,created_at FROM resources WHERE id=?`, id).
		Scan(&res.ID, &res.Name, &res.Kind, &res.Quantity, &locationID, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if locationID.Valid {
		res.LocationID = &locationID.Int64
	}
	return res, nil
}

func (r Repo) UpdateResourceTx(ctx context.Context, tx *sql.Tx, id int64, quantity *int, locationID *int64) error {
	var fields []string
	var args []any
	if quantity != nil {
		fields = append(fields, "quantity=?")
		args = append(args, *quantity)
	}
	if locationID != nil {
		fields = append(fields, "location_id=?")
		args = append(args, *locationID)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE resources SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteResource(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM resources WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListResources(ctx context.Context, kind string, locationID int64) ([]domain.Resource, error) {
	var clauses []string
	var args []any
	if kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, kind)
	}
	if locationID != 0 {
		clauses = append(clauses, "location_id=?")
		args = append(args, locationID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,kind,quantity,location_id,created_at FROM resources `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Resource
	for rows.Next() {
		var res domain.Resource
		var locID sql.NullInt64
		if err := rows.Scan(&res.ID, &res.Name, &res.Kind, &res.Quantity, &locID, &res.CreatedAt); err != nil {
			return nil, err
		}
		if locID.Valid {
			res.LocationID = &locID.Int64
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// --- transfers ---

func (r Repo) InsertTransferTx(ctx context.Context, tx *sql.Tx, t domain.Transfer) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO transfers(resource_id,from_location_id,to_location_id,quantity,transferred_at) VALUES (?,?,?,?,?)`,
		t.ResourceID, nullableInt64Ptr(t.FromLocationID), t.ToLocationID, t.Quantity, t.TransferredAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) SetResourceLocationTx(ctx context.Context, tx *sql.Tx, resourceID, locationID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE resources SET location_id=? WHERE id=?`, locationID, resourceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTransfer(ctx context.Context, id int64) (domain.Transfer, error) {
	var t domain.Transfer
	var from sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,resource_id,from_location_id,to_location_id,quantity,transferred_at FROM transfers WHERE id=?`, id).
		Scan(&t.ID, &t.ResourceID, &from, &t.ToLocationID, &t.Quantity, &t.TransferredAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if from.Valid {
		t.FromLocationID = &from.Int64
	}
	return t, nil
}

func (r Repo) ListTransfers(ctx context.Context, resourceID int64) ([]domain.Transfer, error) {
	query := `SELECT id,resource_id,from_location_id,to_location_id,quantity,transferred_at FROM transfers`
	var args []any
	if resourceID != 0 {
		query += ` WHERE resource_id=?`
		args = append(args, resourceID)
	}
	query += ` ORDER BY transferred_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var from sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ResourceID, &from, &t.ToLocationID, &t.Quantity, &t.TransferredAt); err != nil {
			return nil, err
		}
		if from.Valid {
			t.FromLocationID = &from.Int64
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
