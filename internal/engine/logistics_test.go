package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceKindValidated(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateResource(env.Ctx, "chalk", "stationery", 10, nil, "tester")
	require.Error(t, err)
	res, err := env.Engine.CreateResource(env.Ctx, "sealing talisman", "talisman", 10, nil, "tester")
	require.NoError(t, err)
	require.Equal(t, "talisman", res.Kind)
	require.Equal(t, 10, res.Quantity)
}

func TestResourceUpdate(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	res, err := env.Engine.CreateResource(env.Ctx, "van", "vehicle", 2, nil, "tester")
	require.NoError(t, err)

	_, err = env.Engine.UpdateResource(env.Ctx, res.ID, nil, nil, "tester")
	require.Error(t, err, "empty update must be rejected")

	qty := 3
	got, err := env.Engine.UpdateResource(env.Ctx, res.ID, &qty, &loc.ID, "tester")
	require.NoError(t, err)
	require.Equal(t, 3, got.Quantity)
	require.NotNil(t, got.LocationID)
	require.Equal(t, loc.ID, *got.LocationID)
}

func TestTransferMovesResource(t *testing.T) {
	env := newTestEnv(t)
	from := seedLocation(t, env)
	to, err := env.Engine.CreateLocation(env.Ctx, "Kyoto School", "Kyoto", "tester")
	require.NoError(t, err)
	res, err := env.Engine.CreateResource(env.Ctx, "cursed blade", "cursed_tool", 5, &from.ID, "tester")
	require.NoError(t, err)

	tr, err := env.Engine.TransferResource(env.Ctx, res.ID, to.ID, 2, "tester")
	require.NoError(t, err)
	require.NotNil(t, tr.FromLocationID)
	require.Equal(t, from.ID, *tr.FromLocationID)
	require.Equal(t, to.ID, tr.ToLocationID)

	got, err := env.Engine.Repo.GetResource(env.Ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LocationID)
	require.Equal(t, to.ID, *got.LocationID)
}

func TestTransferValidation(t *testing.T) {
	env := newTestEnv(t)
	loc := seedLocation(t, env)
	res, err := env.Engine.CreateResource(env.Ctx, "talisman box", "talisman", 3, &loc.ID, "tester")
	require.NoError(t, err)

	_, err = env.Engine.TransferResource(env.Ctx, res.ID, loc.ID, 0, "tester")
	require.Error(t, err, "quantity must be positive")

	_, err = env.Engine.TransferResource(env.Ctx, 404, loc.ID, 1, "tester")
	require.ErrorContains(t, err, "resource does not exist")

	other, err := env.Engine.CreateLocation(env.Ctx, "warehouse", "Tokyo", "tester")
	require.NoError(t, err)
	_, err = env.Engine.TransferResource(env.Ctx, res.ID, other.ID, 9, "tester")
	require.ErrorContains(t, err, "quantity exceeds stock")

	_, err = env.Engine.TransferResource(env.Ctx, res.ID, loc.ID, 1, "tester")
	require.ErrorContains(t, err, "already at that location")

	// nothing was written along the way
	var transfers int
	env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM transfers`).Scan(&transfers)
	require.Zero(t, transfers)
}

func TestCurseLifecycle(t *testing.T) {
	env := newTestEnv(t)
	curse := seedCurse(t, env)
	require.Equal(t, "detected", curse.Status)

	got, err := env.Engine.MarkCurseExorcised(env.Ctx, curse.ID, "tester")
	require.NoError(t, err)
	require.Equal(t, "exorcised", got.Status)

	_, err = env.Engine.MarkCurseExorcised(env.Ctx, curse.ID, "tester")
	require.Error(t, err, "exorcising twice must fail")
}

func TestSorcererGradeValidated(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RegisterSorcerer(env.Ctx, "Yuji", "hero", "active", "tester")
	require.Error(t, err)

	s, err := env.Engine.RegisterSorcerer(env.Ctx, "Yuji", "one", "", "tester")
	require.NoError(t, err)
	require.Equal(t, "active", s.Status)

	grade := "special"
	got, err := env.Engine.UpdateSorcerer(env.Ctx, s.ID, &grade, nil, "tester")
	require.NoError(t, err)
	require.Equal(t, "special", got.Grade)
}
