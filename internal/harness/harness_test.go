package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestGolden(t *testing.T) {
	for _, name := range []string{
		"vip_priority_triad",
		"expired_vip_downgraded",
		"release_and_requeue",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/vip_priority_triad.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(Snapshot(scenario.Name, first))
	require.NoError(t, err)
	b, err := MarshalSnapshot(Snapshot(scenario.Name, second))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: "expects a pair that cannot happen"
users:
  - id: a
    gender: Male
    prefer: Male
  - id: b
    gender: Female
lobby:
  - user: a
  - user: b
steps:
  - action: pass
assertions:
  - type: paired
    users: [a, b]
  - type: match_count
    count: 1
  - type: waiting
    users: [a, b]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Expected: a paired with b")
	assert.Contains(t, result.Errors[0], "Actual: a unmatched")
	assert.Contains(t, result.Errors[1], "1 matches")
}

func TestRun_GrantAndAdvance(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: grant_then_expire
description: "a manual grant lasts the given days"
now: "2026-01-10T08:00:00Z"
users:
  - id: a
    gender: Female
steps:
  - action: grant
    user: a
    days: 2
  - action: advance
    duration: 49h
  - action: sweep
assertions:
  - type: tier
    user: a
    tier: Free
  - type: notified
    user: a
    contains: "Congratulations"
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	require.Len(t, result.Trace, 3)
	assert.Equal(t, "expires=2026-01-12T08:00:00Z", result.Trace[0].Detail)
	assert.Equal(t, "now=2026-01-12T09:00:00Z", result.Trace[1].Detail)
	assert.Equal(t, "downgraded=1", result.Trace[2].Detail)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: y\nuserz: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: y\nusers: [{id: a, gender: Male}]\nsteps: [{action: pass}]\nassertions: [{type: match_count, count: 0}]\n",
			want: "name is required",
		},
		{
			name: "bad gender",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Other}]\nsteps: [{action: pass}]\nassertions: [{type: match_count, count: 0}]\n",
			want: `invalid gender "Other"`,
		},
		{
			name: "duplicate user",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Male}, {id: a, gender: Female}]\nsteps: [{action: pass}]\nassertions: [{type: match_count, count: 0}]\n",
			want: `duplicate id "a"`,
		},
		{
			name: "lobby unknown user",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Male}]\nlobby: [{user: b}]\nsteps: [{action: pass}]\nassertions: [{type: match_count, count: 0}]\n",
			want: `lobby[0]: unknown user "b"`,
		},
		{
			name: "half match",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Male}]\nmatches: [[a]]\nsteps: [{action: pass}]\nassertions: [{type: match_count, count: 0}]\n",
			want: "want 2 users",
		},
		{
			name: "unknown step",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Male}]\nsteps: [{action: dance}]\nassertions: [{type: match_count, count: 0}]\n",
			want: `unknown action "dance"`,
		},
		{
			name: "bad duration",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Male}]\nsteps: [{action: advance, duration: soon}]\nassertions: [{type: match_count, count: 0}]\n",
			want: "advance",
		},
		{
			name: "paired needs two",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Male}]\nsteps: [{action: pass}]\nassertions: [{type: paired, users: [a]}]\n",
			want: "paired needs exactly 2 users",
		},
		{
			name: "match_count needs count",
			yaml: "name: x\ndescription: y\nusers: [{id: a, gender: Male}]\nsteps: [{action: pass}]\nassertions: [{type: match_count}]\n",
			want: "count is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
