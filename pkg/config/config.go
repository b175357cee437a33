// Package config loads the runtime configuration from a TOML file.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// PlayerType names a player variant in the configuration.
const (
	PlayerHuman     = "human"
	PlayerEngine    = "engine"
	PlayerHandBrain = "hand_brain"
	PlayerLichess   = "lichess"
)

// Player configures one side of the board.
type Player struct {
	// Color is set on player1 only: "white" or "black". Player2 takes the
	// other color.
	Color string `toml:"color"`
	// Type is human, engine, hand_brain or lichess.
	Type string `toml:"type"`
	// Engine names an entry of the [engines] table.
	Engine string `toml:"engine"`
	// Elo selects an option section of [engine_options.<engine>].
	Elo string `toml:"elo"`
	// HandBrainMode is "normal" or "reverse".
	HandBrainMode string `toml:"hand_brain_mode"`
	// Assistant names an [engines] entry coaching this side; empty falls back
	// to the shared "assistant" engine, if configured.
	Assistant string `toml:"assistant"`
}

// Lichess holds the remote-play credentials.
type Lichess struct {
	APIToken string `toml:"api_token"`
}

// Config is the runtime configuration.
type Config struct {
	// Engines maps engine names to binary paths.
	Engines map[string]string `toml:"engines"`
	// EngineOptions maps engine name -> elo tag -> UCI options.
	EngineOptions map[string]map[string]map[string]string `toml:"engine_options"`

	Player1 Player  `toml:"player1"`
	Player2 Player  `toml:"player2"`
	Lichess Lichess `toml:"lichess"`

	// PromotionTimeoutS is the promotion prompt timeout in seconds; after it
	// the choice defaults to queen.
	PromotionTimeoutS int `toml:"promotion_timeout_s"`
}

// Default returns the configuration used when no file is present: a human
// against a human, no engines.
func Default() Config {
	return Config{
		Engines:           map[string]string{},
		EngineOptions:     map[string]map[string]map[string]string{},
		Player1:           Player{Color: "white", Type: PlayerHuman},
		Player2:           Player{Type: PlayerHuman},
		PromotionTimeoutS: 60,
	}
}

// Load reads and validates a TOML configuration file.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config '%v': %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config '%v': %w", path, err)
	}
	return cfg, nil
}

// PromotionTimeout returns the prompt timeout as a duration.
func (c Config) PromotionTimeout() time.Duration {
	if c.PromotionTimeoutS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PromotionTimeoutS) * time.Second
}

// AssistantEngine resolves the assistant engine for the player config: the
// per-player assignment first, then the shared "assistant" entry. Empty if
// neither is configured.
func (c Config) AssistantEngine(p Player) string {
	if p.Assistant != "" {
		return p.Assistant
	}
	if _, ok := c.Engines["assistant"]; ok {
		return "assistant"
	}
	return ""
}

// EnginePath resolves an engine name to its binary path.
func (c Config) EnginePath(name string) (string, error) {
	path, ok := c.Engines[name]
	if !ok {
		return "", fmt.Errorf("unknown engine '%v'", name)
	}
	return path, nil
}

// Options returns the UCI options for the engine at the given elo tag, empty
// if none are configured.
func (c Config) Options(engine, elo string) map[string]string {
	if tags, ok := c.EngineOptions[engine]; ok {
		if opts, ok := tags[elo]; ok {
			return opts
		}
		if opts, ok := tags["Default"]; ok {
			return opts
		}
	}
	return map[string]string{}
}

func (c Config) validate() error {
	for _, p := range []Player{c.Player1, c.Player2} {
		switch p.Type {
		case "", PlayerHuman, PlayerLichess:
			// no engine required
		case PlayerEngine, PlayerHandBrain:
			if _, ok := c.Engines[p.Engine]; !ok {
				return fmt.Errorf("player engine '%v' not in [engines]", p.Engine)
			}
		default:
			return fmt.Errorf("unknown player type '%v'", p.Type)
		}

		if p.Assistant != "" {
			if _, ok := c.Engines[p.Assistant]; !ok {
				return fmt.Errorf("assistant engine '%v' not in [engines]", p.Assistant)
			}
		}
	}

	switch c.Player1.Color {
	case "", "white", "black":
	default:
		return fmt.Errorf("player1 color must be white or black, got '%v'", c.Player1.Color)
	}

	if c.Player1.Type == PlayerLichess || c.Player2.Type == PlayerLichess {
		if c.Lichess.APIToken == "" {
			return fmt.Errorf("lichess player requires lichess.api_token")
		}
	}
	return nil
}
