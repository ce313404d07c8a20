package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"everdeep.ai/internal/game"
	"everdeep.ai/internal/oracle"
	"everdeep.ai/internal/worldgen"
)

// Config is the full server configuration. Zero values mean "use the
// default"; Load always returns a normalized, validated config.
type Config struct {
	Server ServerConfig `yaml:"server"`
	World  WorldConfig  `yaml:"world"`
	Gen    GenConfig    `yaml:"gen"`
	Oracle OracleConfig `yaml:"oracle"`
	Game   GameConfig   `yaml:"game"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
}

type WorldConfig struct {
	SeedText string `yaml:"seed_text"`
	Lore     string `yaml:"lore"`
}

type GenConfig struct {
	MaxGraphAttempts int     `yaml:"max_graph_attempts"`
	LoopEdgeFraction float64 `yaml:"loop_edge_fraction"`
	MinAvgDegree     float64 `yaml:"min_avg_degree"`
	MaxAvgDegree     float64 `yaml:"max_avg_degree"`
	HiddenEdgeMin    float64 `yaml:"hidden_edge_min"`
	HiddenEdgeMax    float64 `yaml:"hidden_edge_max"`
	HiddenDCMin      int     `yaml:"hidden_dc_min"`
	HiddenDCMax      int     `yaml:"hidden_dc_max"`
	DeadEndChance    float64 `yaml:"dead_end_chance"`
	QuestableChance  float64 `yaml:"questable_chance"`
	FrontierCount    int     `yaml:"frontier_count"`

	MinSpaces     int    `yaml:"min_spaces"`
	MaxSpaces     int    `yaml:"max_spaces"`
	Layout        string `yaml:"layout"`
	CacheCapacity int    `yaml:"cache_capacity"`
	MaxDifficulty int    `yaml:"max_difficulty"`
}

type OracleConfig struct {
	// Backend selects the description/exit oracle: "none" runs fully
	// deterministic, "http" calls an external completion endpoint.
	Backend   string `yaml:"backend"`
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	Retries   int    `yaml:"retries"`
}

type GameConfig struct {
	SaveEveryMoves    int `yaml:"save_every_moves"`
	DefaultPerception int `yaml:"default_perception"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:    ":8080",
			DataDir: "./data",
		},
		World: WorldConfig{
			SeedText: "everdeep",
		},
		Oracle: OracleConfig{
			Backend:   "none",
			TimeoutMS: 5000,
			Retries:   2,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
	if strings.TrimSpace(c.Server.DataDir) == "" {
		c.Server.DataDir = "./data"
	}
	if strings.TrimSpace(c.Server.DBPath) == "" {
		c.Server.DBPath = c.Server.DataDir + "/world.db"
	}
	if strings.TrimSpace(c.World.SeedText) == "" {
		c.World.SeedText = "everdeep"
	}
	if strings.TrimSpace(c.Oracle.Backend) == "" {
		c.Oracle.Backend = "none"
	}
	if c.Oracle.TimeoutMS <= 0 {
		c.Oracle.TimeoutMS = 5000
	}
	if c.Oracle.Retries < 0 {
		c.Oracle.Retries = 0
	}
	// Generation and game knobs keep zero here; the worldgen and game
	// constructors apply their own defaults so embedded users get the
	// same behavior without this package.
}

func (c Config) Validate() error {
	switch c.Oracle.Backend {
	case "none", "http":
	default:
		return fmt.Errorf("oracle.backend must be \"none\" or \"http\", got %q", c.Oracle.Backend)
	}
	if c.Oracle.Backend == "http" && strings.TrimSpace(c.Oracle.URL) == "" {
		return fmt.Errorf("oracle.url required when oracle.backend is \"http\"")
	}
	if c.Gen.MinSpaces < 0 || c.Gen.MaxSpaces < 0 {
		return fmt.Errorf("gen.min_spaces and gen.max_spaces must be >= 0")
	}
	if c.Gen.MaxSpaces > 0 && c.Gen.MinSpaces > c.Gen.MaxSpaces {
		return fmt.Errorf("gen.min_spaces %d exceeds gen.max_spaces %d", c.Gen.MinSpaces, c.Gen.MaxSpaces)
	}
	if c.Gen.MinAvgDegree > 0 && c.Gen.MaxAvgDegree > 0 && c.Gen.MinAvgDegree > c.Gen.MaxAvgDegree {
		return fmt.Errorf("gen.min_avg_degree %.2f exceeds gen.max_avg_degree %.2f", c.Gen.MinAvgDegree, c.Gen.MaxAvgDegree)
	}
	if c.Gen.HiddenDCMin > 0 && c.Gen.HiddenDCMax > 0 && c.Gen.HiddenDCMin > c.Gen.HiddenDCMax {
		return fmt.Errorf("gen.hidden_dc_min %d exceeds gen.hidden_dc_max %d", c.Gen.HiddenDCMin, c.Gen.HiddenDCMax)
	}
	if c.Game.SaveEveryMoves < 0 {
		return fmt.Errorf("game.save_every_moves must be >= 0")
	}
	return nil
}

// GenConfig converts to the generator's own config type.
func (c Config) GenConfig() worldgen.Config {
	return worldgen.Config{
		Graph: worldgen.GraphConfig{
			MaxAttempts:      c.Gen.MaxGraphAttempts,
			LoopEdgeFraction: c.Gen.LoopEdgeFraction,
			MinAvgDegree:     c.Gen.MinAvgDegree,
			MaxAvgDegree:     c.Gen.MaxAvgDegree,
			HiddenEdgeMin:    c.Gen.HiddenEdgeMin,
			HiddenEdgeMax:    c.Gen.HiddenEdgeMax,
			HiddenDCMin:      c.Gen.HiddenDCMin,
			HiddenDCMax:      c.Gen.HiddenDCMax,
			DeadEndChance:    c.Gen.DeadEndChance,
			QuestableChance:  c.Gen.QuestableChance,
			FrontierCount:    c.Gen.FrontierCount,
		},
		CacheCapacity: c.Gen.CacheCapacity,
		MinSpaces:     c.Gen.MinSpaces,
		MaxSpaces:     c.Gen.MaxSpaces,
		Layout:        c.Gen.Layout,
		MaxDifficulty: c.Gen.MaxDifficulty,
	}
}

// GameConfig converts to the game service's config type.
func (c Config) GameConfig() game.Config {
	return game.Config{
		SaveEveryMoves:    c.Game.SaveEveryMoves,
		DefaultPerception: c.Game.DefaultPerception,
	}
}

// OracleTimeout returns the configured call budget as a duration.
func (c Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutMS) * time.Millisecond
}

// HTTPOracleConfig converts to the oracle client's config type. Only
// meaningful when Backend is "http".
func (c Config) HTTPOracleConfig() oracle.HTTPConfig {
	return oracle.HTTPConfig{
		BaseURL: c.Oracle.URL,
		Timeout: c.OracleTimeout(),
		Retries: c.Oracle.Retries,
	}
}
