package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmdispatch/internal/models"
)

var contactRowColumns = []string{"id", "phone", "name", "product", "status", "created_at"}

func TestContactRepository_GetByIDs_KeepsRequestOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContactRepository(db)

	mock.ExpectQuery("FROM contacts c JOIN unnest").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(contactRowColumns).
			AddRow("k2", "+5511900000002", "Bia Lima", "Labs", "Ativo", testNow).
			AddRow("k1", "+5511900000001", nil, nil, nil, testNow))

	contacts, err := repo.GetByIDs(context.Background(), []string{"k2", "k1"})
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "k2", contacts[0].ID)
	assert.Equal(t, "Bia", contacts[0].FirstName())
	assert.Nil(t, contacts[1].Name)
	assert.Equal(t, "+5511900000001", contacts[1].DisplayName())
}

func TestContactRepository_GetByIDs_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContactRepository(db)

	contacts, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_Find_BuildsFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContactRepository(db)

	mock.ExpectQuery("WHERE LOWER\\(c.product\\) = ANY\\(\\$1\\) AND EXISTS (.+) ANY\\(\\$2\\)\\) ORDER BY c.created_at").
		WithArgs(`{"elite"}`, `{"sem resposta 7 dias"}`).
		WillReturnRows(sqlmock.NewRows(contactRowColumns).
			AddRow("k1", "+5511900000001", "Ana Souza", "Elite", "Pausado", testNow))

	contacts, err := repo.Find(context.Background(), models.ContactFilter{
		Products: []string{" Elite "},
		Tags:     []string{"Sem resposta 7 dias"},
	})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Elite", *contacts[0].Product)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_Find_NoFilterSelectsAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContactRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM contacts c ORDER BY").
		WillReturnRows(sqlmock.NewRows(contactRowColumns))

	contacts, err := repo.Find(context.Background(), models.ContactFilter{})
	require.NoError(t, err)
	assert.Empty(t, contacts)
}
