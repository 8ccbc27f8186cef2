package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToggleInterestRefusesSixth(t *testing.T) {
	five := []string{"Arte", "Música", "Viagem", "Yoga", "Moda"}

	got := ToggleInterest(five, "Dança")
	assert.Equal(t, five, got)
}

func TestToggleInterestSwapAtFive(t *testing.T) {
	five := []string{"Arte", "Música", "Viagem", "Yoga", "Moda"}

	removed := ToggleInterest(five, "Yoga")
	assert.Equal(t, []string{"Arte", "Música", "Viagem", "Moda"}, removed)

	added := ToggleInterest(removed, "Dança")
	assert.Equal(t, []string{"Arte", "Música", "Viagem", "Moda", "Dança"}, added)
}

func TestToggleInterestDoesNotMutateInput(t *testing.T) {
	selected := []string{"Arte"}
	_ = ToggleInterest(selected, "Arte")
	assert.Equal(t, []string{"Arte"}, selected)
}

func TestValidOrientation(t *testing.T) {
	assert.True(t, ValidOrientation("bissexual"))
	assert.False(t, ValidOrientation("hetero"))
}
