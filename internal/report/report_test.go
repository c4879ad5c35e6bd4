package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleksandrkozlov/preferans/internal/scenario"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func passed() *scenario.Result {
	return &scenario.Result{
		Scenario:  "three-player-deal",
		Endpoint:  "ws://127.0.0.1:8080",
		Staggered: true,
		Pass:      true,
		Duration:  1250 * time.Millisecond,
		Clients: []scenario.ClientResult{
			{
				Name: "Player0",
				Steps: []scenario.StepResult{
					{Step: `expect method == "LoginResponse"`, Method: "LoginResponse", Elapsed: 12 * time.Millisecond, Timeout: 5 * time.Second, OK: true},
					{Step: `expect method == "DealCards"`, Method: "DealCards", Elapsed: 310 * time.Millisecond, Timeout: 5 * time.Second, OK: true},
				},
			},
			{
				Name:      "Player1",
				JoinDelay: 100 * time.Millisecond,
				Steps: []scenario.StepResult{
					{Step: `expect method == "LoginResponse"`, Method: "LoginResponse", Elapsed: 4 * time.Millisecond, Timeout: 5 * time.Second, OK: true},
					{Step: `expect method == "DealCards"`, Method: "DealCards", Elapsed: 201 * time.Millisecond, Timeout: 5 * time.Second, OK: true},
				},
			},
		},
	}
}

func failed() *scenario.Result {
	return &scenario.Result{
		Scenario: "three-player-deal",
		Endpoint: "ws://127.0.0.1:8080",
		Duration: 5 * time.Second,
		Clients: []scenario.ClientResult{
			{
				Name: "Player0",
				Steps: []scenario.StepResult{
					{Step: `expect method == "LoginResponse"`, Method: "LoginResponse", Elapsed: 3 * time.Millisecond, Timeout: 5 * time.Second, OK: true},
					{
						Step:    `expect method == "DealCards"`,
						Elapsed: 5 * time.Second,
						Timeout: 5 * time.Second,
						Error:   `wait for method == "DealCards": deadline exceeded (discarded 1: PlayerJoined)`,
					},
				},
				Error: `wait for method == "DealCards": deadline exceeded (discarded 1: PlayerJoined)`,
			},
			{Name: "Player1", JoinDelay: 100 * time.Millisecond, Error: "transport failed"},
		},
		Errors:       []string{"scenario three-player-deal: server exited"},
		ServerStderr: "Segmentation fault\n",
	}
}

func TestText(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	for name, res := range map[string]*scenario.Result{"text_pass": passed(), "text_fail": failed()} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Text(&buf, res))
			golden(t).Assert(t, name, buf.Bytes())
		})
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, failed()))
	golden(t).Assert(t, "json_fail", buf.Bytes())

	var back scenario.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, *failed(), back)
}

func TestWrite(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var text, js bytes.Buffer
	require.NoError(t, Write(&text, "", passed()))
	require.NoError(t, Write(&js, FormatJSON, passed()))
	assert.Contains(t, text.String(), "PASS three-player-deal")
	assert.True(t, json.Valid(js.Bytes()))

	assert.Error(t, Write(&text, "yaml", passed()))
}
