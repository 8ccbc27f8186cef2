package main

import (
	"testing"

	"safimatch/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedPlanIsValid(t *testing.T) {
	plan, err := ParsePlan(defaultAccounts)
	require.NoError(t, err)

	assert.Len(t, plan.Contas, 5)
	assert.Equal(t, "Test@12345", plan.Senha)

	var oneWay int
	for _, p := range plan.Pares {
		if !p.Mutual() {
			oneWay++
		}
	}
	assert.Equal(t, 1, oneWay)
}

func TestParsePlanRejectsBadIndex(t *testing.T) {
	data := []byte(`
senha: x
contas:
  - email: a@test
pares:
  - {de: 0, para: 3, ida: like}
`)
	_, err := ParsePlan(data)
	assert.Error(t, err)
}

func TestParsePlanRejectsUnknownKind(t *testing.T) {
	data := []byte(`
senha: x
contas:
  - email: a@test
  - email: b@test
pares:
  - {de: 0, para: 1, ida: love}
`)
	_, err := ParsePlan(data)
	assert.Error(t, err)
}

func TestAccountProfileUpdate(t *testing.T) {
	acc := Account{
		Nome:           "Ana",
		DataNascimento: "1998-03-12",
		Interesses:     []string{"Viagem"},
		Latitude:       -23.5,
		Longitude:      -46.6,
	}
	cols := acc.ProfileUpdate().Columns()

	assert.Equal(t, "Ana", cols["nome"])
	assert.Equal(t, model.NewDate(1998, 3, 12), cols["data_nascimento"])
	assert.NotContains(t, cols, "bio")
	assert.Equal(t, -23.5, cols["latitude"])
}
