package registrar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"hub-analyzer/internal/models"
	"hub-analyzer/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvalidator struct {
	hubs []string
	err  error
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, hubID string) error {
	f.hubs = append(f.hubs, hubID)
	return f.err
}

func setupRegistrar(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Registrar, *fakeInvalidator) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	inv := &fakeInvalidator{}
	reg := NewRegistrar(
		db,
		repository.NewSensorRepository(db, logger),
		repository.NewScenarioRepository(db, logger),
		inv,
		logger,
		nil,
	)
	return db, mock, reg, inv
}

func expectScenarioShell(mock sqlmock.Sqlmock, hubID, name string, id int64) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(hubID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO scenarios`).
		WithArgs(hubID, name).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
}

func expectSensors(mock sqlmock.Sqlmock, hubID string, present ...string) {
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range present {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`SELECT id\s+FROM sensors`).
		WithArgs(hubID, sqlmock.AnyArg()).
		WillReturnRows(rows)
}

func motionScenario() ([]models.ScenarioConditionSpec, []models.DeviceActionSpec) {
	conditions := []models.ScenarioConditionSpec{{
		SensorID:  "motion-1",
		Type:      models.ConditionMotion,
		Operation: models.OperationEquals,
		Value:     json.RawMessage(`true`),
	}}
	actions := []models.DeviceActionSpec{{
		SensorID: "lamp-1",
		Type:     models.ActionActivate,
	}}
	return conditions, actions
}

func TestRegisterScenario_BooleanStoredAsOne(t *testing.T) {
	db, mock, reg, inv := setupRegistrar(t)
	defer db.Close()

	conditions, actions := motionScenario()

	expectScenarioShell(mock, "hub-1", "hall", 5)
	expectSensors(mock, "hub-1", "motion-1")
	mock.ExpectExec(`INSERT INTO conditions`).
		WithArgs(int64(5), "hub-1", "motion-1", "MOTION", "EQUALS", int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	expectSensors(mock, "hub-1", "lamp-1")
	mock.ExpectExec(`INSERT INTO actions`).
		WithArgs(int64(5), "hub-1", "lamp-1", "ACTIVATE", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "hall", conditions, actions)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.ScenarioID)
	assert.Equal(t, int64(1), result.ConditionsAdded)
	assert.Equal(t, int64(1), result.ActionsAdded)
	assert.Equal(t, []string{"hub-1"}, inv.hubs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_Idempotent(t *testing.T) {
	db, mock, reg, _ := setupRegistrar(t)
	defer db.Close()

	conditions, actions := motionScenario()

	for i, affected := range []int64{1, 0} {
		expectScenarioShell(mock, "hub-1", "hall", 5)
		expectSensors(mock, "hub-1", "motion-1")
		mock.ExpectExec(`INSERT INTO conditions`).
			WillReturnResult(sqlmock.NewResult(int64(i+1), affected))
		expectSensors(mock, "hub-1", "lamp-1")
		mock.ExpectExec(`INSERT INTO actions`).
			WillReturnResult(sqlmock.NewResult(int64(i+1), affected))
		mock.ExpectCommit()
	}

	first, err := reg.RegisterScenario(context.Background(), "hub-1", "hall", conditions, actions)
	require.NoError(t, err)
	second, err := reg.RegisterScenario(context.Background(), "hub-1", "hall", conditions, actions)
	require.NoError(t, err)

	assert.Equal(t, first.ScenarioID, second.ScenarioID)
	assert.Zero(t, second.ConditionsAdded)
	assert.Zero(t, second.ActionsAdded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_MissingSensorDropsConditionBatch(t *testing.T) {
	db, mock, reg, inv := setupRegistrar(t)
	defer db.Close()

	conditions := []models.ScenarioConditionSpec{
		{SensorID: "temp-1", Type: models.ConditionTemperature, Operation: models.OperationGreaterThan, Value: json.RawMessage(`20`)},
		{SensorID: "ghost", Type: models.ConditionHumidity, Operation: models.OperationLowerThan, Value: json.RawMessage(`40`)},
	}
	actions := []models.DeviceActionSpec{{SensorID: "fan-1", Type: models.ActionSetValue, Value: intPtr(3)}}

	expectScenarioShell(mock, "hub-1", "cooling", 9)
	expectSensors(mock, "hub-1", "temp-1")
	expectSensors(mock, "hub-1", "fan-1")
	mock.ExpectExec(`INSERT INTO actions`).
		WithArgs(int64(9), "hub-1", "fan-1", "SET_VALUE", int64(3)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "cooling", conditions, actions)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSensorNotFound)
	assert.Contains(t, err.Error(), "ghost")

	require.NotNil(t, result)
	assert.Equal(t, int64(9), result.ScenarioID)
	assert.Zero(t, result.ConditionsAdded)
	assert.Equal(t, int64(1), result.ActionsAdded)
	assert.Equal(t, []string{"hub-1"}, inv.hubs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_MissingSensorDropsActionBatch(t *testing.T) {
	db, mock, reg, _ := setupRegistrar(t)
	defer db.Close()

	conditions, _ := motionScenario()
	actions := []models.DeviceActionSpec{
		{SensorID: "lamp-1", Type: models.ActionActivate},
		{SensorID: "lamp-2", Type: models.ActionActivate},
	}

	expectScenarioShell(mock, "hub-1", "hall", 5)
	expectSensors(mock, "hub-1", "motion-1")
	mock.ExpectExec(`INSERT INTO conditions`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	expectSensors(mock, "hub-1", "lamp-1")
	mock.ExpectCommit()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "hall", conditions, actions)
	assert.ErrorIs(t, err, models.ErrSensorNotFound)
	require.NotNil(t, result)
	assert.Equal(t, int64(1), result.ConditionsAdded)
	assert.Zero(t, result.ActionsAdded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_InvalidValueDropsConditionBatch(t *testing.T) {
	db, mock, reg, _ := setupRegistrar(t)
	defer db.Close()

	conditions := []models.ScenarioConditionSpec{
		{SensorID: "temp-1", Type: models.ConditionTemperature, Operation: models.OperationEquals, Value: json.RawMessage(`21`)},
		{SensorID: "temp-1", Type: models.ConditionTemperature, Operation: models.OperationEquals, Value: json.RawMessage(`"warm"`)},
	}

	expectScenarioShell(mock, "hub-1", "warm", 3)
	mock.ExpectCommit()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "warm", conditions, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConditionValue)
	require.NotNil(t, result)
	assert.Equal(t, int64(3), result.ScenarioID)
	assert.Zero(t, result.ConditionsAdded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_OutOfRangeConditionValueKeepsShell(t *testing.T) {
	db, mock, reg, inv := setupRegistrar(t)
	defer db.Close()

	conditions := []models.ScenarioConditionSpec{
		{SensorID: "t-1", Type: models.ConditionTemperature, Operation: models.OperationGreaterThan, Value: json.RawMessage(`4294967296`)},
	}

	expectScenarioShell(mock, "hub-1", "big", 12)
	mock.ExpectCommit()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "big", conditions, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConditionValue)
	require.NotNil(t, result)
	assert.Equal(t, int64(12), result.ScenarioID)
	assert.Zero(t, result.ConditionsAdded)
	assert.Equal(t, []string{"hub-1"}, inv.hubs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_OutOfRangeActionValueDropsActionBatch(t *testing.T) {
	db, mock, reg, _ := setupRegistrar(t)
	defer db.Close()

	big := 4294967296
	actions := []models.DeviceActionSpec{
		{SensorID: "lamp-1", Type: models.ActionActivate},
		{SensorID: "dimmer-1", Type: models.ActionSetValue, Value: &big},
	}

	expectScenarioShell(mock, "hub-1", "dim", 13)
	mock.ExpectCommit()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "dim", nil, actions)
	assert.ErrorIs(t, err, models.ErrInvalidActionValue)
	require.NotNil(t, result)
	assert.Equal(t, int64(13), result.ScenarioID)
	assert.Zero(t, result.ActionsAdded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_UnknownConditionType(t *testing.T) {
	db, mock, reg, _ := setupRegistrar(t)
	defer db.Close()

	conditions := []models.ScenarioConditionSpec{
		{SensorID: "p-1", Type: models.ConditionType("PRESSURE"), Operation: models.OperationEquals, Value: json.RawMessage(`1`)},
	}

	expectScenarioShell(mock, "hub-1", "pressure", 4)
	mock.ExpectCommit()

	_, err := reg.RegisterScenario(context.Background(), "hub-1", "pressure", conditions, nil)
	assert.ErrorIs(t, err, models.ErrUnknownConditionType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_BothBatchesRejected(t *testing.T) {
	db, mock, reg, _ := setupRegistrar(t)
	defer db.Close()

	conditions := []models.ScenarioConditionSpec{
		{SensorID: "temp-1", Type: models.ConditionTemperature, Operation: models.OperationEquals, Value: json.RawMessage(`[1]`)},
	}
	actions := []models.DeviceActionSpec{{SensorID: "ghost", Type: models.ActionActivate}}

	expectScenarioShell(mock, "hub-1", "broken", 8)
	expectSensors(mock, "hub-1")
	mock.ExpectCommit()

	_, err := reg.RegisterScenario(context.Background(), "hub-1", "broken", conditions, actions)
	assert.ErrorIs(t, err, models.ErrInvalidConditionValue)
	assert.ErrorIs(t, err, models.ErrSensorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_DatabaseErrorRollsBack(t *testing.T) {
	db, mock, reg, inv := setupRegistrar(t)
	defer db.Close()

	conditions, actions := motionScenario()
	dbErr := errors.New("deadlock detected")

	expectScenarioShell(mock, "hub-1", "hall", 5)
	expectSensors(mock, "hub-1", "motion-1")
	mock.ExpectExec(`INSERT INTO conditions`).WillReturnError(dbErr)
	mock.ExpectRollback()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "hall", conditions, actions)
	assert.ErrorIs(t, err, dbErr)
	assert.Nil(t, result)
	assert.Empty(t, inv.hubs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_CacheFailureIsNotFatal(t *testing.T) {
	db, mock, reg, inv := setupRegistrar(t)
	defer db.Close()
	inv.err = errors.New("redis down")

	expectScenarioShell(mock, "hub-1", "empty", 2)
	mock.ExpectCommit()

	result, err := reg.RegisterScenario(context.Background(), "hub-1", "empty", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ScenarioID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterScenario_RequiresName(t *testing.T) {
	db, mock, reg, _ := setupRegistrar(t)
	defer db.Close()

	_, err := reg.RegisterScenario(context.Background(), "hub-1", "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidScenario)
	require.NoError(t, mock.ExpectationsWereMet())
}

func intPtr(v int) *int { return &v }
