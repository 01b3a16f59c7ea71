package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settingsDoc = `<ControllerSettings>
  <ConnectionString>alpha:5100,beta:5101,gamma:5102</ConnectionString>
  <NodeName>beta</NodeName>
  <Port>5101</Port>
  <LogLevel>info</LogLevel>
  <MaxChunkItemCount>1000</MaxChunkItemCount>
  <RedundantNodesPerLocation>2</RedundantNodesPerLocation>
  <WebInterfacePort>8100</WebInterfacePort>
</ControllerSettings>`

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(settingsDoc))
	require.NoError(t, err)

	assert.Equal(t, "beta", s.NodeName)
	assert.Equal(t, 5101, s.Port)
	assert.Equal(t, 1000, s.MaxChunkItemCount)
	assert.Equal(t, 2, s.RedundantNodesPerLocation)

	controllers, err := s.Controllers()
	require.NoError(t, err)
	require.Len(t, controllers, 3)
	assert.Equal(t, NodeDefinition{Hostname: "alpha", Port: 5100}, controllers[0])
	assert.Equal(t, NodeDefinition{Hostname: "gamma", Port: 5102}, controllers[2])
}

func TestSettingsSelf(t *testing.T) {
	s, err := ParseSettings([]byte(settingsDoc))
	require.NoError(t, err)

	self, err := s.Self()
	require.NoError(t, err)
	assert.Equal(t, "beta:5101", self.ConnectionName())

	// A node outside its own connection string must not start.
	s.NodeName = "delta"
	_, err = s.Self()
	assert.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty connection string", func(s *Settings) { s.ConnectionString = "" }},
		{"empty node name", func(s *Settings) { s.NodeName = "" }},
		{"port out of range", func(s *Settings) { s.Port = 70000 }},
		{"bad connection string entry", func(s *Settings) { s.ConnectionString = "alpha:x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSettings([]byte(settingsDoc))
			require.NoError(t, err)
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSettingsDocumentRoundTrip(t *testing.T) {
	s, err := ParseSettings([]byte(settingsDoc))
	require.NoError(t, err)

	again, err := ParseSettings([]byte(s.Document()))
	require.NoError(t, err)
	assert.Equal(t, s.ConnectionString, again.ConnectionString)
	assert.Equal(t, s.MaxChunkItemCount, again.MaxChunkItemCount)
	assert.Equal(t, s.RedundantNodesPerLocation, again.RedundantNodesPerLocation)
}
