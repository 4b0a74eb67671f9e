package harness

import "github.com/roach88/ghostchat/internal/matcher"

// TraceEvent records what one step did.
type TraceEvent struct {
	Step   int            `json:"step"`
	Action string         `json:"action"`
	User   string         `json:"user,omitempty"`
	Pairs  []matcher.Pair `json:"pairs,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

// Notice is a notification captured during the run.
type Notice struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// State is the store content after the last step.
type State struct {
	// Lobby lists waiting users in queue order.
	Lobby []string `json:"lobby"`
	// Matches lists active pairs as [user_a, user_b] in creation order.
	Matches [][]string `json:"matches"`
	// Tiers maps every user to their tier.
	Tiers map[string]string `json:"tiers"`
}

// PartnerOf returns the partner of id in the final state, or "".
func (s State) PartnerOf(id string) string {
	for _, m := range s.Matches {
		switch id {
		case m[0]:
			return m[1]
		case m[1]:
			return m[0]
		}
	}
	return ""
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace         []TraceEvent `json:"trace"`
	Notifications []Notice     `json:"notifications"`
	State         State        `json:"state"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Notifications: []Notice{},
		Errors:        []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
