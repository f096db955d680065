package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Seednode/storyteller/internal/game"
)

type Config struct {
	bind           string
	interlude      time.Duration
	maxPlayers     int
	moveTime       time.Duration
	nodeID         string
	packs          string
	playersToStart int
	port           int
	prefix         string
	profile        bool
	redisURL       string
	ruleSet        string
	sessionSecret  string
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
	victory        time.Duration
	winScore       int

	fs  afero.Fs
	log *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.winScore < 1 {
		return fmt.Errorf("invalid win score (must be positive): %d", c.winScore)
	}
	rules, err := game.ParseRuleSet(c.ruleSet)
	if err != nil {
		return err
	}
	minSeats := rules.MinSeats()
	if c.maxPlayers < minSeats {
		return fmt.Errorf("invalid max players (must be at least %d for %s): %d", minSeats, rules, c.maxPlayers)
	}
	if c.playersToStart < minSeats || c.playersToStart > c.maxPlayers {
		return fmt.Errorf("invalid players to start (must be between %d-%d inclusive for %s): %d", minSeats, c.maxPlayers, rules, c.playersToStart)
	}
	if c.moveTime < 0 || c.interlude < 0 || c.victory < 0 || c.sessionTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// fillDefaults generates the values that cannot have a static default.
func (c *Config) fillDefaults() error {
	if c.nodeID == "" {
		c.nodeID = uuid.NewString()
	}
	if c.sessionSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		c.sessionSecret = hex.EncodeToString(buf)
	}
	return nil
}

func (c *Config) settings() game.Settings {
	rules, _ := game.ParseRuleSet(c.ruleSet)

	return game.Settings{
		WinScore:       c.winScore,
		MoveTime:       c.moveTime,
		InterludePause: c.interlude,
		VictoryPause:   c.victory,
		RuleSet:        rules,
		PlayersToStart: c.playersToStart,
		MaxPlayers:     c.maxPlayers,
	}
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STORYTELLER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "storyteller",
		Short:         "Serves rooms for a storyteller card game in the style of Dixit and Imaginarium.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			if err := cfg.fillDefaults(); err != nil {
				return err
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			cfg.log = log

			if cfg.fs == nil {
				cfg.fs = afero.NewOsFs()
			}

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	defaults := game.DefaultSettings()

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: STORYTELLER_BIND)")
	fs.DurationVar(&cfg.interlude, "interlude-pause", defaults.InterludePause, "time to show scores before the next round (env: STORYTELLER_INTERLUDE_PAUSE)")
	fs.IntVar(&cfg.maxPlayers, "max-players", defaults.MaxPlayers, "seats per room (env: STORYTELLER_MAX_PLAYERS)")
	fs.DurationVar(&cfg.moveTime, "move-time", defaults.MoveTime, "time allowed per phase, 0 to wait forever (env: STORYTELLER_MOVE_TIME)")
	fs.StringVar(&cfg.nodeID, "node-id", "", "name of this process among those sharing a redis server (env: STORYTELLER_NODE_ID)")
	fs.StringVar(&cfg.packs, "packs", "", "directory of card packs, one subdirectory per pack (env: STORYTELLER_PACKS)")
	fs.IntVar(&cfg.playersToStart, "players-to-start", defaults.PlayersToStart, "seated players needed to start a game (env: STORYTELLER_PLAYERS_TO_START)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: STORYTELLER_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: STORYTELLER_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: STORYTELLER_PROFILE)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "redis server for sharing rooms between processes (env: STORYTELLER_REDIS_URL)")
	fs.StringVar(&cfg.ruleSet, "rule-set", defaults.RuleSet.String(), "scoring rules: imaginarium or dixit (env: STORYTELLER_RULE_SET)")
	fs.StringVar(&cfg.sessionSecret, "session-secret", "", "key for signing player cookies (env: STORYTELLER_SESSION_SECRET)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed (env: STORYTELLER_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: STORYTELLER_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: STORYTELLER_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: STORYTELLER_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: STORYTELLER_VERSION)")
	fs.DurationVar(&cfg.victory, "victory-pause", defaults.VictoryPause, "time to show the winner before a new game (env: STORYTELLER_VICTORY_PAUSE)")
	fs.IntVar(&cfg.winScore, "win-score", defaults.WinScore, "points needed to win (env: STORYTELLER_WIN_SCORE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("storyteller v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
