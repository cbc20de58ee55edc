package testutil

import "testing"

// Scenario steps for route-level tests. Each step is a named subtest, so a
// failing run reads as the path through the scenario, for example
// "Given_a_router_with_auth/Then_title_routes_are_guarded".

// Given names the fixture a scenario starts from.
func Given(t *testing.T, fixture string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", fixture, fn)
}

// When names the request or event under test.
func When(t *testing.T, action string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", action, fn)
}

// Then names the expected outcome.
func Then(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", outcome, fn)
}

// And adds another outcome to the preceding Then.
func And(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "And", outcome, fn)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run(keyword+" "+desc, fn)
}
