package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/config"
)

const testSettingsDoc = `<ControllerSettings>
  <ConnectionString>alpha:5100,beta:5101,gamma:5102</ConnectionString>
  <NodeName>alpha</NodeName>
  <Port>5100</Port>
  <LogLevel>info</LogLevel>
  <MaxChunkItemCount>1000</MaxChunkItemCount>
  <RedundantNodesPerLocation>2</RedundantNodesPerLocation>
  <WebInterfacePort>8100</WebInterfacePort>
</ControllerSettings>`

func testState(t *testing.T) *config.Controller {
	t.Helper()
	settings, err := config.ParseSettings([]byte(testSettingsDoc))
	require.NoError(t, err)
	ctrl, err := config.NewController(settings)
	require.NoError(t, err)
	return ctrl
}

func peerDoc(t *testing.T, mutate func(*config.Settings)) string {
	t.Helper()
	settings, err := config.ParseSettings([]byte(testSettingsDoc))
	require.NoError(t, err)
	settings.NodeName = "beta"
	settings.Port = 5101
	if mutate != nil {
		mutate(settings)
	}
	return settings.Document()
}

func TestCheckCompatibilityController(t *testing.T) {
	s := testState(t)

	tests := []struct {
		name   string
		mutate func(*config.Settings)
		admit  bool
	}{
		{"matching settings", nil, true},
		{"different connection string", func(p *config.Settings) {
			p.ConnectionString = "alpha:5100,beta:5101,delta:5103"
		}, false},
		{"different chunk threshold", func(p *config.Settings) {
			p.MaxChunkItemCount = 500
		}, false},
		{"different redundancy", func(p *config.Settings) {
			p.RedundantNodesPerLocation = 3
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ja := &JoinAttempt{
				Type:     config.TypeController,
				Name:     "beta",
				Port:     5101,
				Settings: peerDoc(t, tt.mutate),
			}
			reason := checkCompatibility(s, ja)
			if tt.admit {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestCheckCompatibilityQueryAndStorage(t *testing.T) {
	s := testState(t)

	for _, ntype := range []config.NodeType{config.TypeQuery, config.TypeStorage} {
		t.Run(ntype.String(), func(t *testing.T) {
			// Query and storage nodes only need the cluster identity to
			// match; their other settings are their own business.
			ja := &JoinAttempt{Type: ntype, Settings: peerDoc(t, func(p *config.Settings) {
				p.MaxChunkItemCount = 9999
			})}
			assert.Empty(t, checkCompatibility(s, ja))

			ja.Settings = peerDoc(t, func(p *config.Settings) {
				p.ConnectionString = "other:1"
			})
			assert.NotEmpty(t, checkCompatibility(s, ja))
		})
	}
}

func TestCheckCompatibilityApi(t *testing.T) {
	s := testState(t)

	ja := &JoinAttempt{Type: config.TypeApi, Settings: "alpha:5100,beta:5101,gamma:5102"}
	assert.Empty(t, checkCompatibility(s, ja))

	ja.Settings = "alpha:5100"
	assert.NotEmpty(t, checkCompatibility(s, ja))
}

func TestCheckCompatibilityConsole(t *testing.T) {
	s := testState(t)
	assert.Empty(t, checkCompatibility(s, &JoinAttempt{Type: config.TypeConsole}))
}

func TestCheckCompatibilityGarbageSettings(t *testing.T) {
	s := testState(t)
	ja := &JoinAttempt{Type: config.TypeController, Settings: "not xml"}
	assert.NotEmpty(t, checkCompatibility(s, ja))
}
