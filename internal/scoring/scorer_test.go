package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crmdispatch/internal/models"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) *time.Time {
	t := now.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestScore_EliteProductPausedWithOldTag(t *testing.T) {
	data := models.ScoringData{
		Conversation: models.Conversation{LastInteractionAt: daysAgo(9)},
		Products:     []models.ContactProduct{{ProductType: "Elite", Status: "Pausado"}},
		Tags:         []models.ConversationTag{{Name: "Sem resposta 14 dias", Active: true}},
	}

	b := Score(data, now)

	assert.Equal(t, 30, b.Time)
	assert.Equal(t, 25, b.Product)
	assert.Equal(t, 20, b.Status)
	assert.Equal(t, 10, b.Tag)
	assert.Equal(t, 85, b.Total)
	assert.Equal(t, models.PriorityCritical, b.Bucket)
	if assert.NotNil(t, b.Days) {
		assert.Equal(t, 9, *b.Days)
	}
}

func TestTimeFactor(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{0, 0}, {1, 0}, {2, 10}, {3, 10}, {4, 20}, {7, 20}, {8, 30}, {60, 30},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, TimeFactor(tc.days), "days=%d", tc.days)
	}
}

func TestDaysSince_FloorsPartialDays(t *testing.T) {
	last := now.Add(-47 * time.Hour)
	assert.Equal(t, 1, DaysSince(last, now))
	assert.Equal(t, 0, DaysSince(now.Add(time.Hour), now))
}

func TestProductFactor(t *testing.T) {
	tests := []struct {
		name     string
		products []models.ContactProduct
		want     int
	}{
		{"no products", nil, 5},
		{"scale", []models.ContactProduct{{ProductType: "Scale"}}, 25},
		{"labs", []models.ContactProduct{{ProductType: "Labs"}}, 15},
		{"venda lowercase", []models.ContactProduct{{ProductType: "venda"}}, 15},
		{"unknown", []models.ContactProduct{{ProductType: "Mentoria"}}, 5},
		{"max across products", []models.ContactProduct{{ProductType: "Labs"}, {ProductType: "Elite"}, {ProductType: "X"}}, 25},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ProductFactor(tc.products))
		})
	}
}

func TestStatusFactor_ClampsAt25(t *testing.T) {
	products := []models.ContactProduct{
		{ProductType: "Elite", Status: "Reembolsado"},
		{ProductType: "Labs", Status: "Pausado"},
	}
	sales := []models.Sale{{Status: "Perdido"}, {Status: "Novo Lead"}}

	assert.Equal(t, 25, StatusFactor(products, sales))
}

func TestStatusFactor_Weights(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{"Reembolsado", 25},
		{"Pausado", 20},
		{"Formulário Não Preenchido", 15},
		{"Próximo do Vencimento", 15},
		{"Aluno Novo", 10},
		{"Ativo", 0},
	}
	for _, tc := range tests {
		got := StatusFactor([]models.ContactProduct{{ProductType: "Elite", Status: tc.status}}, nil)
		assert.Equal(t, tc.want, got, tc.status)
	}
}

func TestStatusFactor_SalesOnly(t *testing.T) {
	assert.Equal(t, 10, StatusFactor(nil, []models.Sale{{Status: "Perdido"}, {Status: "Ganho"}}))
	assert.Equal(t, 20, StatusFactor(nil, []models.Sale{{Status: "Perdido"}, {Status: "novo lead"}}))
}

func TestTagWeight(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"Sem resposta 14 dias", 10},
		{"21 dias sem contato", 10},
		{"Contato esgotado", 10},
		{"Sem resposta 7 dias", 7},
		{"10d sem retorno", 7},
		{"Sem resposta 3 dias", 5},
		{"Inadimplente", 5},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, TagWeight(tc.name), tc.name)
	}
}

func TestTagFactor_IgnoresInactiveAndClamps(t *testing.T) {
	tags := []models.ConversationTag{
		{Name: "Sem resposta 14 dias", Active: true},
		{Name: "Esgotado", Active: true},
		{Name: "Sem resposta 7 dias", Active: true},
		{Name: "Sem resposta 14 dias", Active: false},
	}
	assert.Equal(t, 20, TagFactor(tags))
	assert.Equal(t, 0, TagFactor([]models.ConversationTag{{Name: "Esgotado"}}))
}

func TestScore_DataGapsContributeZero(t *testing.T) {
	b := Score(models.ScoringData{}, now)

	assert.Equal(t, 0, b.Time)
	assert.Equal(t, 5, b.Product)
	assert.Equal(t, 0, b.Status)
	assert.Equal(t, 0, b.Tag)
	assert.Equal(t, 5, b.Total)
	assert.Equal(t, models.PriorityLow, b.Bucket)
	assert.Nil(t, b.Days)
}

func TestScore_AlwaysWithinBounds(t *testing.T) {
	data := models.ScoringData{
		Conversation: models.Conversation{LastInteractionAt: daysAgo(400)},
		Products: []models.ContactProduct{
			{ProductType: "Elite", Status: "Reembolsado"},
			{ProductType: "Scale", Status: "Pausado"},
		},
		Sales: []models.Sale{{Status: "Perdido"}, {Status: "Perdido"}},
		Tags: []models.ConversationTag{
			{Name: "Esgotado", Active: true},
			{Name: "14 dias", Active: true},
			{Name: "30 dias", Active: true},
		},
	}

	b := Score(data, now)
	assert.Equal(t, 100, b.Total)
	assert.LessOrEqual(t, b.Status, 25)
	assert.LessOrEqual(t, b.Tag, 20)
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		score int
		want  models.PriorityBucket
	}{
		{0, models.PriorityLow},
		{19, models.PriorityLow},
		{20, models.PriorityMedium},
		{44, models.PriorityMedium},
		{45, models.PriorityHigh},
		{69, models.PriorityHigh},
		{70, models.PriorityCritical},
		{100, models.PriorityCritical},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, BucketFor(tc.score), "score=%d", tc.score)
	}
}
