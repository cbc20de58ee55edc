package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScenarioStepNames(t *testing.T) {
	var names []string
	Given(t, "a title", func(t *testing.T) {
		names = append(names, t.Name())
		When(t, "it is transferred", func(t *testing.T) {
			names = append(names, t.Name())
			Then(t, "the owner changes", func(t *testing.T) { names = append(names, t.Name()) })
			And(t, "history records it", func(t *testing.T) { names = append(names, t.Name()) })
		})
	})

	assert.Equal(t, []string{
		"TestScenarioStepNames/Given_a_title",
		"TestScenarioStepNames/Given_a_title/When_it_is_transferred",
		"TestScenarioStepNames/Given_a_title/When_it_is_transferred/Then_the_owner_changes",
		"TestScenarioStepNames/Given_a_title/When_it_is_transferred/And_history_records_it",
	}, names)
}
