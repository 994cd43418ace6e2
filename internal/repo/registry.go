package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"curseward/internal/domain"
)

// Plain CRUD for the registry entities: sorcerers, curses, locations and
// techniques. None of these cascade; the lifecycle engine only reads them.

func (r Repo) InsertSorcererTx(ctx context.Context, tx *sql.Tx, s domain.Sorcerer) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO sorcerers(name,grade,status,created_at) VALUES (?,?,?,?)`,
		s.Name, s.Grade, s.Status, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetSorcerer(ctx context.Context, id int64) (domain.Sorcerer, error) {
	var s domain.Sorcerer
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,grade,status,created_at FROM sorcerers WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &s.Grade, &s.Status, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) UpdateSorcererTx(ctx context.Context, tx *sql.Tx, id int64, grade, status *string) error {
	var fields []string
	var args []any
	if grade != nil {
		fields = append(fields, "grade=?")
		args = append(args, *grade)
	}
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE sorcerers SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSorcerer(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sorcerers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListSorcerers(ctx context.Context, grade, status string) ([]domain.Sorcerer, error) {
	var clauses []string
	var args []any
	if grade != "" {
		clauses = append(clauses, "grade=?")
		args = append(args, grade)
	}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,grade,status,created_at FROM sorcerers `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sorcerer
	for rows.Next() {
		var s domain.Sorcerer
		if err := rows.Scan(&s.ID, &s.Name, &s.Grade, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// --- curses ---

func (r Repo) InsertCurseTx(ctx context.Context, tx *sql.Tx, c domain.Curse) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO curses(name,grade,location_id,status,detected_at) VALUES (?,?,?,?,?)`,
		c.Name, c.Grade, nullableInt64Ptr(c.LocationID), c.Status, c.DetectedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetCurse(ctx context.Context, id int64) (domain.Curse, error) {
	var c domain.Curse
	var locationID sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,grade,location_id,status,detected_at FROM curses WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Grade, &locationID, &c.Status, &c.DetectedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if locationID.Valid {
		c.LocationID = &locationID.Int64
	}
	return c, nil
}

func (r Repo) UpdateCurseStatusTx(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE curses SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCurse(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM curses WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListCurses(ctx context.Context, grade, status string) ([]domain.Curse, error) {
	var clauses []string
	var args []any
	if grade != "" {
		clauses = append(clauses, "grade=?")
		args = append(args, grade)
	}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,grade,location_id,status,detected_at FROM curses `+where+` ORDER BY detected_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Curse
	for rows.Next() {
		var c domain.Curse
		var locationID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &c.Grade, &locationID, &c.Status, &c.DetectedAt); err != nil {
			return nil, err
		}
		if locationID.Valid {
			c.LocationID = &locationID.Int64
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- locations ---

func (r Repo) InsertLocationTx(ctx context.Context, tx *sql.Tx, l domain.Location) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO locations(name,prefecture,created_at) VALUES (?,?,?)`,
		l.Name, nullable(l.Prefecture), l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetLocation(ctx context.Context, id int64) (domain.Location, error) {
	var l domain.Location
	var prefecture sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,prefecture,created_at FROM locations WHERE id=?`, id).
		Scan(&l.ID, &l.Name, &prefecture, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if prefecture.Valid {
		l.Prefecture = prefecture.String
	}
	return l, err
}

func (r Repo) DeleteLocation(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM locations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,prefecture,created_at FROM locations ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Location
	for rows.Next() {
		var l domain.Location
		var prefecture sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &prefecture, &l.CreatedAt); err != nil {
			return nil, err
		}
		if prefecture.Valid {
			l.Prefecture = prefecture.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// --- techniques ---

func (r Repo) InsertTechniqueTx(ctx context.Context, tx *sql.Tx, t domain.Technique) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO techniques(sorcerer_id,name,description,created_at) VALUES (?,?,?,?)`,
		t.SorcererID, t.Name, nullable(t.Description), t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTechnique(ctx context.Context, id int64) (domain.Technique, error) {
	var t domain.Technique
	var description sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,sorcerer_id,name,description,created_at FROM techniques WHERE id=?`, id).
		Scan(&t.ID, &t.SorcererID, &t.Name, &description, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if description.Valid {
		t.Description = description.String
	}
	return t, err
}

func (r Repo) DeleteTechnique(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM techniques WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTechniques(ctx context.Context, sorcererID int64) ([]domain.Technique, error) {
	query := `SELECT id,sorcerer_id,name,description,created_at FROM techniques`
	var args []any
	if sorcererID != 0 {
		query += ` WHERE sorcerer_id=?`
		args = append(args, sorcererID)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Technique
	for rows.Next() {
		var t domain.Technique
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.SorcererID, &t.Name, &description, &t.CreatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			t.Description = description.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
