package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/storyteller/internal/game"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "tls cert without key", modify: func(c *Config) { c.tlsCert = "cert.pem" }, wantErr: true},
		{name: "tls pair", modify: func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }},
		{name: "port too low", modify: func(c *Config) { c.port = 0 }, wantErr: true},
		{name: "port too high", modify: func(c *Config) { c.port = 65536 }, wantErr: true},
		{name: "zero win score", modify: func(c *Config) { c.winScore = 0 }, wantErr: true},
		{name: "one seat", modify: func(c *Config) { c.maxPlayers = 1 }, wantErr: true},
		{name: "start above max", modify: func(c *Config) { c.playersToStart = 8 }, wantErr: true},
		{name: "start below minimum", modify: func(c *Config) { c.playersToStart = 1 }, wantErr: true},
		{name: "negative move time", modify: func(c *Config) { c.moveTime = -time.Second }, wantErr: true},
		{name: "unknown rules", modify: func(c *Config) { c.ruleSet = "poker" }, wantErr: true},
		{name: "dixit", modify: func(c *Config) { c.ruleSet = "Dixit" }},
		{name: "two seats imaginarium", modify: func(c *Config) { c.playersToStart = 2 }, wantErr: true},
		{name: "two seats dixit", modify: func(c *Config) { c.ruleSet, c.playersToStart = "dixit", 2 }},
		{name: "imaginarium max two", modify: func(c *Config) { c.playersToStart, c.maxPlayers = 2, 2 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)

			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigSettings(t *testing.T) {
	cfg := testConfig()
	cfg.ruleSet = "dixit"
	cfg.moveTime = 30 * time.Second

	s := cfg.settings()
	assert.Equal(t, game.Dixit, s.RuleSet)
	assert.Equal(t, 30*time.Second, s.MoveTime)
	assert.Equal(t, 40, s.WinScore)
	assert.Equal(t, 3, s.PlayersToStart)
	assert.Equal(t, 7, s.MaxPlayers)
}

func TestConfigFillDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.fillDefaults())
	assert.NotEmpty(t, cfg.nodeID)
	assert.Len(t, cfg.sessionSecret, 64)

	kept := &Config{nodeID: "node-a", sessionSecret: "secret"}
	require.NoError(t, kept.fillDefaults())
	assert.Equal(t, "node-a", kept.nodeID)
	assert.Equal(t, "secret", kept.sessionSecret)
}

func TestNewCmdReadsEnvironment(t *testing.T) {
	t.Setenv("STORYTELLER_WIN_SCORE", "25")
	t.Setenv("STORYTELLER_RULE_SET", "dixit")
	t.Setenv("STORYTELLER_MOVE_TIME", "90s")

	cfg := &Config{}
	cmd := newCmd(cfg)

	assert.Equal(t, 25, cfg.winScore)
	assert.Equal(t, "dixit", cfg.ruleSet)
	assert.Equal(t, 90*time.Second, cfg.moveTime)
	assert.Equal(t, 7, cfg.maxPlayers)
	assert.Equal(t, "storyteller", cmd.Use)
}
