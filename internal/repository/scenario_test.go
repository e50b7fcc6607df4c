package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"hub-analyzer/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockScenarioDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ScenarioRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewScenarioRepository(db, zap.NewNop())
	return db, mock, repo
}

func intPtr(v int) *int { return &v }

func TestLockHub(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.LockHub(context.Background(), tx, "hub-1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertScenario(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO scenarios`).
		WithArgs("hub-1", "night").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.UpsertScenario(context.Background(), db, "hub-1", "night")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertScenario_Error(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	dbErr := errors.New("boom")
	mock.ExpectQuery(`INSERT INTO scenarios`).WillReturnError(dbErr)

	_, err := repo.UpsertScenario(context.Background(), db, "hub-1", "night")
	assert.ErrorIs(t, err, dbErr)
}

func TestAddConditions_CountsInsertedRows(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	conditions := []models.Condition{
		{SensorID: "s1", Type: models.ConditionTemperature, Operation: models.OperationGreaterThan, Value: intPtr(25)},
		{SensorID: "s2", Type: models.ConditionMotion, Operation: models.OperationEquals, Value: nil},
	}

	mock.ExpectExec(`INSERT INTO conditions`).
		WithArgs(int64(7), "hub-1", "s1", "TEMPERATURE", "GREATER_THAN", int64(25)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO conditions`).
		WithArgs(int64(7), "hub-1", "s2", "MOTION", "EQUALS", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.AddConditions(context.Background(), db, 7, "hub-1", conditions)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddActions_CountsInsertedRows(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	actions := []models.Action{
		{SensorID: "lamp", Type: models.ActionActivate},
		{SensorID: "dimmer", Type: models.ActionSetValue, Value: intPtr(40)},
	}

	mock.ExpectExec(`INSERT INTO actions`).
		WithArgs(int64(7), "hub-1", "lamp", "ACTIVATE", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO actions`).
		WithArgs(int64(7), "hub-1", "dimmer", "SET_VALUE", int64(40)).
		WillReturnResult(sqlmock.NewResult(2, 1))

	n, err := repo.AddActions(context.Background(), db, 7, "hub-1", actions)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddActions_StopsOnError(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	dbErr := errors.New("fk violation")
	mock.ExpectExec(`INSERT INTO actions`).WillReturnError(dbErr)

	_, err := repo.AddActions(context.Background(), db, 7, "hub-1", []models.Action{
		{SensorID: "lamp", Type: models.ActionActivate},
		{SensorID: "fan", Type: models.ActionActivate},
	})
	assert.ErrorIs(t, err, dbErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByHubID(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, hub_id, name\s+FROM scenarios`).
		WithArgs("hub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hub_id", "name"}).
			AddRow(int64(1), "hub-1", "night").
			AddRow(int64(2), "hub-1", "morning"))
	mock.ExpectQuery(`FROM conditions c`).
		WithArgs("hub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "scenario_id", "sensor_id", "type", "operation", "value"}).
			AddRow(int64(10), int64(1), "s1", "LUMINOSITY", "LOWER_THAN", int64(100)).
			AddRow(int64(11), int64(2), "s2", "MOTION", "EQUALS", nil))
	mock.ExpectQuery(`FROM actions a`).
		WithArgs("hub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "scenario_id", "sensor_id", "type", "value"}).
			AddRow(int64(20), int64(1), "lamp", "ACTIVATE", nil).
			AddRow(int64(21), int64(1), "dimmer", "SET_VALUE", int64(30)))

	scenarios, err := repo.FindByHubID(context.Background(), "hub-1")
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	night := scenarios[0]
	assert.Equal(t, "night", night.Name)
	require.Len(t, night.Conditions, 1)
	assert.Equal(t, models.ConditionLuminosity, night.Conditions[0].Type)
	assert.Equal(t, models.OperationLowerThan, night.Conditions[0].Operation)
	require.NotNil(t, night.Conditions[0].Value)
	assert.Equal(t, 100, *night.Conditions[0].Value)
	require.Len(t, night.Actions, 2)
	assert.Equal(t, "lamp", night.Actions[0].SensorID)
	assert.Nil(t, night.Actions[0].Value)
	assert.Equal(t, 30, *night.Actions[1].Value)

	morning := scenarios[1]
	require.Len(t, morning.Conditions, 1)
	assert.Nil(t, morning.Conditions[0].Value)
	assert.Empty(t, morning.Actions)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByHubID_NoScenarios(t *testing.T) {
	db, mock, repo := setupMockScenarioDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM scenarios`).
		WithArgs("hub-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hub_id", "name"}))

	scenarios, err := repo.FindByHubID(context.Background(), "hub-2")
	require.NoError(t, err)
	assert.Empty(t, scenarios)
	require.NoError(t, mock.ExpectationsWereMet())
}
