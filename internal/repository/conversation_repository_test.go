package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmdispatch/internal/models"
)

var conversationRowColumns = []string{
	"id", "phone", "contact_id", "score", "priority_bucket", "manual_override", "last_interaction_at", "score_updated_at",
}

func TestConversationRepository_LoadScoringData(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectQuery("FROM conversations WHERE id").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows(conversationRowColumns).
			AddRow("v1", "+5511900000001", "k1", 0, "Baixo", false, testNow, nil))
	mock.ExpectQuery("FROM contact_products").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"product_type", "status"}).AddRow("Elite", "Pausado"))
	mock.ExpectQuery("SELECT status FROM sales").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Perdido"))
	mock.ExpectQuery("FROM conversation_tags").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "active"}).
			AddRow("Sem resposta 14 dias", true).
			AddRow("Esgotado", false))

	data, err := repo.LoadScoringData(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, []models.ContactProduct{{ProductType: "Elite", Status: "Pausado"}}, data.Products)
	assert.Equal(t, []models.Sale{{Status: "Perdido"}}, data.Sales)
	assert.Len(t, data.Tags, 2)
	assert.False(t, data.Tags[1].Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_LoadScoringData_RowErrors(t *testing.T) {
	driverErr := errors.New("connection reset")

	tests := []struct {
		name     string
		products *sqlmock.Rows
		sales    *sqlmock.Rows
	}{
		{
			name: "products",
			products: sqlmock.NewRows([]string{"product_type", "status"}).
				AddRow("Elite", "Pausado").
				AddRow("Labs", "Reembolsado").
				RowError(1, driverErr),
		},
		{
			name:     "sales",
			products: sqlmock.NewRows([]string{"product_type", "status"}),
			sales: sqlmock.NewRows([]string{"status"}).
				AddRow("Perdido").
				AddRow("Novo Lead").
				RowError(1, driverErr),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewConversationRepository(db)

			mock.ExpectQuery("FROM conversations WHERE id").
				WithArgs("v1").
				WillReturnRows(sqlmock.NewRows(conversationRowColumns).
					AddRow("v1", "+5511900000001", "k1", 0, "Baixo", false, testNow, nil))
			mock.ExpectQuery("FROM contact_products").WithArgs("k1").WillReturnRows(tt.products)
			if tt.sales != nil {
				mock.ExpectQuery("SELECT status FROM sales").WithArgs("k1").WillReturnRows(tt.sales)
			}

			data, err := repo.LoadScoringData(context.Background(), "v1")
			require.Error(t, err)
			assert.ErrorIs(t, err, driverErr)
			assert.Contains(t, err.Error(), tt.name)
			assert.Nil(t, data)
		})
	}
}

func TestConversationRepository_LoadScoringData_NoContact(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectQuery("FROM conversations WHERE id").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows(conversationRowColumns).
			AddRow("v1", "+5511900000001", nil, 0, "Baixo", false, nil, nil))
	mock.ExpectQuery("FROM conversation_tags").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "active"}))

	data, err := repo.LoadScoringData(context.Background(), "v1")
	require.NoError(t, err)
	assert.Empty(t, data.Products)
	assert.Empty(t, data.Sales)
	assert.Nil(t, data.Conversation.LastInteractionAt)
}

func TestConversationRepository_SaveAutomaticScore_RespectsOverrideInSQL(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectExec("CASE WHEN manual_override THEN priority_bucket ELSE \\$3 END").
		WithArgs("v1", 85, "Crítico", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveAutomaticScore(context.Background(), "v1", 85, models.PriorityCritical, testNow)
	require.NoError(t, err)
}

func TestConversationRepository_SaveRecalculatedScore_ClearsOverride(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectExec("manual_override = FALSE").
		WithArgs("v1", 30, "Médio", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveRecalculatedScore(context.Background(), "v1", 30, models.PriorityMedium, testNow))
}

func TestConversationRepository_SetManualPriority(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectExec("manual_override = TRUE").
		WithArgs("v1", "Alto", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("manual_override = TRUE").
		WithArgs("missing", "Alto", testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetManualPriority(context.Background(), "v1", models.PriorityHigh, testNow))
	assert.ErrorIs(t, repo.SetManualPriority(context.Background(), "missing", models.PriorityHigh, testNow), ErrNotFound)
}
