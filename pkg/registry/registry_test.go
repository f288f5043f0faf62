package registry

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterInsertsOnConflictDoNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO organizations").
		WithArgs("org1", "Acme").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := newRegistry(db)
	require.NoError(t, r.Register(context.Background(), "org1", "Acme"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeregisterDeletesByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM organizations").
		WithArgs("org1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := newRegistry(db)
	require.NoError(t, r.Deregister(context.Background(), "org1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrgIDsReturnsOrderedIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("org1").AddRow("org2")
	mock.ExpectQuery("SELECT id FROM organizations ORDER BY id ASC").WillReturnRows(rows)

	r := newRegistry(db)
	ids, err := r.ListOrgIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"org1", "org2"}, ids)
}
