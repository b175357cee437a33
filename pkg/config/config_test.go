package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "centaur.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := write(t, `
promotion_timeout_s = 30

[engines]
stockfish = "/usr/bin/stockfish"
maia = "/usr/bin/maia"

[engine_options.stockfish.Default]
Threads = "1"

[engine_options.stockfish.1350]
UCI_LimitStrength = "true"
UCI_Elo = "1350"

[player1]
color = "white"
type = "human"
assistant = "maia"

[player2]
type = "engine"
engine = "stockfish"
elo = "1350"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PromotionTimeout())
	assert.Equal(t, "human", cfg.Player1.Type)
	assert.Equal(t, "engine", cfg.Player2.Type)

	p, err := cfg.EnginePath("stockfish")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/stockfish", p)

	// Per-color assistant assignment; the other side has none configured.
	assert.Equal(t, "maia", cfg.AssistantEngine(cfg.Player1))
	assert.Equal(t, "", cfg.AssistantEngine(cfg.Player2))

	opts := cfg.Options("stockfish", "1350")
	assert.Equal(t, "1350", opts["UCI_Elo"])

	// Unknown elo tags fall back to Default.
	opts = cfg.Options("stockfish", "2000")
	assert.Equal(t, "1", opts["Threads"])

	_, err = cfg.EnginePath("komodo")
	assert.Error(t, err)
}

func TestAssistantFallback(t *testing.T) {
	path := write(t, `
[engines]
assistant = "/usr/bin/stockfish"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// Without per-player assignments both sides share the "assistant" entry.
	assert.Equal(t, "assistant", cfg.AssistantEngine(cfg.Player1))
	assert.Equal(t, "assistant", cfg.AssistantEngine(cfg.Player2))
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []string{
		// Engine player without a configured engine.
		`
[player1]
type = "engine"
engine = "missing"
`,
		// Unknown player type.
		`
[player1]
type = "telepathy"
`,
		// Lichess without a token.
		`
[player2]
type = "lichess"
`,
		// Bad color.
		`
[player1]
color = "green"
`,
		// Assistant engine that is not configured.
		`
[player1]
assistant = "missing"
`,
		// Not TOML at all.
		`{not toml}`,
	}

	for _, content := range tests {
		_, err := config.Load(write(t, content))
		assert.Errorf(t, err, "expected rejection: %v", content)
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 60*time.Second, cfg.PromotionTimeout())
	assert.Equal(t, config.PlayerHuman, cfg.Player1.Type)
}
