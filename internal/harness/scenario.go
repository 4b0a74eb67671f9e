package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ghostchat/internal/model"
)

// Scenario defines a matchmaking scenario: initial state, the steps to run
// and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the RFC 3339 clock start. Empty means testutil.Epoch.
	Now string `yaml:"now,omitempty"`

	// Threshold overrides the referral threshold of the membership engine.
	Threshold int `yaml:"threshold,omitempty"`

	Users      []UserSpec  `yaml:"users"`
	Lobby      []LobbySpec `yaml:"lobby,omitempty"`
	Matches    [][]string  `yaml:"matches,omitempty"`
	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// UserSpec seeds one user record.
type UserSpec struct {
	ID     string `yaml:"id"`
	Gender string `yaml:"gender"`
	Prefer string `yaml:"prefer,omitempty"`
	Tier   string `yaml:"tier,omitempty"`
	// VIPFor gives the user a membership expiring this long after the clock
	// start. Negative values create an already expired membership.
	VIPFor   string `yaml:"vip_for,omitempty"`
	Email    string `yaml:"email,omitempty"`
	OrgMatch bool   `yaml:"org_match,omitempty"`
}

// LobbySpec enters one user into the lobby during setup.
type LobbySpec struct {
	User     string `yaml:"user"`
	OrgMatch *bool  `yaml:"org_match,omitempty"`
}

// Step is one action executed after setup.
type Step struct {
	Action   string `yaml:"action"`
	User     string `yaml:"user,omitempty"`
	OrgMatch *bool  `yaml:"org_match,omitempty"`
	Duration string `yaml:"duration,omitempty"`
	Days     int    `yaml:"days,omitempty"`
}

// Step actions.
const (
	StepPass    = "pass"
	StepEnter   = "enter"
	StepLeave   = "leave"
	StepRelease = "release"
	StepAdvance = "advance"
	StepSweep   = "sweep"
	StepGrant   = "grant"
)

// Assertion validates the state after all steps ran.
type Assertion struct {
	Type     string   `yaml:"type"`
	User     string   `yaml:"user,omitempty"`
	Users    []string `yaml:"users,omitempty"`
	Tier     string   `yaml:"tier,omitempty"`
	Contains string   `yaml:"contains,omitempty"`
	Count    *int     `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertPaired      = "paired"
	AssertUnmatched   = "unmatched"
	AssertWaiting     = "waiting"
	AssertMatchCount  = "match_count"
	AssertTier        = "tier"
	AssertNotified    = "notified"
	AssertNotNotified = "not_notified"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and consistent.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now: %w", err)
		}
	}
	if len(s.Users) == 0 {
		return fmt.Errorf("users list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := make(map[string]bool, len(s.Users))
	for i, u := range s.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if known[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		known[u.ID] = true
		if _, err := model.ParseGender(u.Gender); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		if _, err := model.ParsePreference(u.Prefer); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		if _, err := model.ParseTier(u.Tier); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		if u.VIPFor != "" {
			if _, err := time.ParseDuration(u.VIPFor); err != nil {
				return fmt.Errorf("users[%d]: vip_for: %w", i, err)
			}
		}
	}

	for i, l := range s.Lobby {
		if !known[l.User] {
			return fmt.Errorf("lobby[%d]: unknown user %q", i, l.User)
		}
	}
	for i, m := range s.Matches {
		if len(m) != 2 {
			return fmt.Errorf("matches[%d]: want 2 users, got %d", i, len(m))
		}
		if !known[m[0]] || !known[m[1]] {
			return fmt.Errorf("matches[%d]: unknown user in %v", i, m)
		}
	}

	for i, st := range s.Steps {
		if err := validateStep(i, st, known); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st Step, known map[string]bool) error {
	switch st.Action {
	case StepPass, StepSweep:
		return nil
	case StepEnter, StepLeave, StepRelease, StepGrant:
		if !known[st.User] {
			return fmt.Errorf("steps[%d]: %s needs a known user, got %q", index, st.Action, st.User)
		}
		return nil
	case StepAdvance:
		if _, err := time.ParseDuration(st.Duration); err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		return nil
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	}
	return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertPaired:
		if len(a.Users) != 2 {
			return fmt.Errorf("assertions[%d]: paired needs exactly 2 users", index)
		}
	case AssertUnmatched:
		if len(a.Users) == 0 {
			return fmt.Errorf("assertions[%d]: users list is required for unmatched", index)
		}
	case AssertWaiting:
		// An empty list asserts an empty lobby.
	case AssertMatchCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for match_count", index)
		}
	case AssertTier:
		if a.User == "" {
			return fmt.Errorf("assertions[%d]: user is required for tier", index)
		}
		if _, err := model.ParseTier(a.Tier); err != nil || a.Tier == "" {
			return fmt.Errorf("assertions[%d]: tier must be Free or VIP", index)
		}
	case AssertNotified:
		if a.User == "" || a.Contains == "" {
			return fmt.Errorf("assertions[%d]: user and contains are required for notified", index)
		}
	case AssertNotNotified:
		if a.User == "" {
			return fmt.Errorf("assertions[%d]: user is required for not_notified", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
