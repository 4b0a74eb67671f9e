package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the final state to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	State    State
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nFinal state:\n")
	fmt.Fprintf(&buf, "  lobby: %v\n", e.State.Lobby)
	fmt.Fprintf(&buf, "  matches: %v\n", e.State.Matches)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertPaired:
		return assertPaired(result.State, a)
	case AssertUnmatched:
		return assertUnmatched(result.State, a)
	case AssertWaiting:
		return assertWaiting(result.State, a)
	case AssertMatchCount:
		return assertMatchCount(result.State, a)
	case AssertTier:
		return assertTier(result.State, a)
	case AssertNotified:
		return assertNotified(result, a)
	case AssertNotNotified:
		return assertNotNotified(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertPaired(st State, a Assertion) error {
	x, y := a.Users[0], a.Users[1]
	if got := st.PartnerOf(x); got != y {
		actual := "unmatched"
		if got != "" {
			actual = "paired with " + got
		}
		return &AssertionError{
			Type:     AssertPaired,
			Expected: fmt.Sprintf("%s paired with %s", x, y),
			Actual:   fmt.Sprintf("%s %s", x, actual),
			State:    st,
		}
	}
	return nil
}

func assertUnmatched(st State, a Assertion) error {
	for _, id := range a.Users {
		if p := st.PartnerOf(id); p != "" {
			return &AssertionError{
				Type:     AssertUnmatched,
				Expected: fmt.Sprintf("%s has no partner", id),
				Actual:   fmt.Sprintf("%s paired with %s", id, p),
				State:    st,
			}
		}
	}
	return nil
}

func assertWaiting(st State, a Assertion) error {
	want := a.Users
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(st.Lobby, want) {
		return &AssertionError{
			Type:     AssertWaiting,
			Expected: fmt.Sprintf("lobby %v", want),
			Actual:   fmt.Sprintf("lobby %v", st.Lobby),
			State:    st,
		}
	}
	return nil
}

func assertMatchCount(st State, a Assertion) error {
	if len(st.Matches) != *a.Count {
		return &AssertionError{
			Type:     AssertMatchCount,
			Expected: fmt.Sprintf("%d matches", *a.Count),
			Actual:   fmt.Sprintf("%d matches", len(st.Matches)),
			State:    st,
		}
	}
	return nil
}

func assertTier(st State, a Assertion) error {
	if got := st.Tiers[a.User]; got != a.Tier {
		return &AssertionError{
			Type:     AssertTier,
			Expected: fmt.Sprintf("%s is %s", a.User, a.Tier),
			Actual:   fmt.Sprintf("%s is %q", a.User, got),
			State:    st,
		}
	}
	return nil
}

func noticesTo(result *Result, user string) []string {
	var out []string
	for _, n := range result.Notifications {
		if n.To == user {
			out = append(out, n.Text)
		}
	}
	return out
}

func assertNotified(result *Result, a Assertion) error {
	texts := noticesTo(result, a.User)
	matches := 0
	for _, t := range texts {
		if strings.Contains(t, a.Contains) {
			matches++
		}
	}
	ok := matches > 0
	if a.Count != nil {
		ok = matches == *a.Count
	}
	if !ok {
		expected := fmt.Sprintf("notification to %s containing %q", a.User, a.Contains)
		if a.Count != nil {
			expected = fmt.Sprintf("%d notifications to %s containing %q", *a.Count, a.User, a.Contains)
		}
		return &AssertionError{
			Type:     AssertNotified,
			Expected: expected,
			Actual:   fmt.Sprintf("%d matching of %d received", matches, len(texts)),
			State:    result.State,
		}
	}
	return nil
}

func assertNotNotified(result *Result, a Assertion) error {
	if texts := noticesTo(result, a.User); len(texts) > 0 {
		return &AssertionError{
			Type:     AssertNotNotified,
			Expected: fmt.Sprintf("no notifications to %s", a.User),
			Actual:   fmt.Sprintf("%d received, first %q", len(texts), texts[0]),
			State:    result.State,
		}
	}
	return nil
}
