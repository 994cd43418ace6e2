package repo

import (
	"context"
	"database/sql"

	"curseward/internal/domain"
)

// Assignment-in-charge rows live and die with their request's assigning
// transitions; all writes happen inside the engine's transaction.

func (r Repo) InsertAssignmentInChargeTx(ctx context.Context, tx *sql.Tx, a domain.AssignmentInCharge) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO assignments_in_charge(request_id,mission_id,sorcerer_id,created_at) VALUES (?,?,?,?)`,
		a.RequestID, a.MissionID, a.SorcererID, a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanAssignmentInCharge(row *sql.Row) (domain.AssignmentInCharge, error) {
	var a domain.AssignmentInCharge
	err := row.Scan(&a.ID, &a.RequestID, &a.MissionID, &a.SorcererID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetAssignmentInChargeByRequest(ctx context.Context, requestID int64) (domain.AssignmentInCharge, error) {
	return scanAssignmentInCharge(r.DB.QueryRowContext(ctx,
		`SELECT id,request_id,mission_id,sorcerer_id,created_at FROM assignments_in_charge WHERE request_id=? LIMIT 1`, requestID))
}

func (r Repo) GetAssignmentInChargeByRequestTx(ctx context.Context, tx *sql.Tx, requestID int64) (domain.AssignmentInCharge, error) {
	return scanAssignmentInCharge(tx.QueryRowContext(ctx,
		`SELECT id,request_id,mission_id,sorcerer_id,created_at FROM assignments_in_charge WHERE request_id=? LIMIT 1`, requestID))
}

func (r Repo) GetAssignmentInChargeByMissionTx(ctx context.Context, tx *sql.Tx, missionID int64) (domain.AssignmentInCharge, error) {
	return scanAssignmentInCharge(tx.QueryRowContext(ctx,
		`SELECT id,request_id,mission_id,sorcerer_id,created_at FROM assignments_in_charge WHERE mission_id=? LIMIT 1`, missionID))
}

func (r Repo) DeleteAssignmentInChargeTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments_in_charge WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- mission assignments ---

func (r Repo) InsertMissionAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.MissionAssignment) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO mission_assignments(mission_id,sorcerer_id,created_at) VALUES (?,?,?)`,
		a.MissionID, a.SorcererID, a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListMissionAssignments(ctx context.Context, missionID int64) ([]domain.MissionAssignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,mission_id,sorcerer_id,created_at FROM mission_assignments WHERE mission_id=? ORDER BY id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MissionAssignment
	for rows.Next() {
		var a domain.MissionAssignment
		if err := rows.Scan(&a.ID, &a.MissionID, &a.SorcererID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountMissionAssignmentsTx(ctx context.Context, tx *sql.Tx, missionID int64) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM mission_assignments WHERE mission_id=?`, missionID).Scan(&count)
	return count, err
}
