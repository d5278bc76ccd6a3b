// Package cli implements the memhive CLI commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/config"
	"github.com/rcliao/memhive/internal/engine"
	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/kv/etcdkv"
	"github.com/rcliao/memhive/internal/kv/rediskv"
	"github.com/rcliao/memhive/internal/kv/sqlitekv"
	"github.com/rcliao/memhive/internal/model"
	"github.com/rcliao/memhive/internal/router"
	"github.com/rcliao/memhive/internal/scan"
)

// Version is overridden at build time.
var Version = "dev"

var (
	configPath  string
	envFile     string
	backendFlag string
	agentFlag   string
	projectFlag string
	logLevel    string
	noScan      bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memhive",
	Short: "Hierarchical memory for agents",
	Long: "Scoped memory for agents: private, personal, team and public tiers on top of a key-value store\n" +
		"(SQLite, Redis or etcd). Every command prints JSON.",
	Version: Version,
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default: $MEMHIVE_CONFIG or ~/.config/memhive/config.yaml)")
	pf.StringVar(&envFile, "env-file", "", "Env file to load (default: ./.env if present)")
	pf.StringVarP(&backendFlag, "backend", "b", "", "Store backend: memory, sqlite, redis, etcd (default: $MEMHIVE_BACKEND or sqlite)")
	pf.StringVarP(&agentFlag, "agent", "a", "", "Agent id (default: $MEMHIVE_AGENT_ID)")
	pf.StringVarP(&projectFlag, "project", "p", "", "Project id (default: $MEMHIVE_PROJECT_ID)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $MEMHIVE_LOG_LEVEL or info)")
	pf.BoolVar(&noScan, "no-scan", false, "Disable the sensitive-content scanner")
}

// loadConfig resolves configuration with flags taking precedence over the
// environment, files and defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if agentFlag != "" {
		cfg.AgentID = agentFlag
	}
	if projectFlag != "" {
		cfg.ProjectID = projectFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if noScan {
		cfg.Scanner.Enabled = false
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens the configured backend.
func openStore(cfg *config.Config) (kv.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return kv.NewMemoryStore(), nil
	case config.BackendSQLite:
		return sqlitekv.Open(cfg.SQLite.Path)
	case config.BackendRedis:
		return rediskv.Open(rediskv.Options{
			URL:      cfg.Redis.URL,
			Prefix:   cfg.Redis.Prefix,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
		})
	case config.BackendEtcd:
		return etcdkv.Open(etcdkv.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			Namespace:   cfg.Etcd.Namespace,
			Username:    cfg.Etcd.Username,
			Password:    cfg.Etcd.Password,
			DialTimeout: cfg.Etcd.DialTimeout,
		})
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// session is everything a command needs to run operations.
type session struct {
	cfg    *config.Config
	store  kv.Store
	engine *engine.Engine
	caller engine.Caller
	logger *slog.Logger
}

func newSession(cfg *config.Config, store kv.Store) *session {
	logger := newLogger(cfg)
	var scanner engine.Scanner
	if cfg.Scanner.Enabled {
		scanner = scan.Default()
	}
	return &session{
		cfg:    cfg,
		store:  store,
		engine: engine.New(router.New(store, logger), engine.Options{Logger: logger, Scanner: scanner}),
		caller: engine.Caller{AgentID: cfg.AgentID, ProjectID: cfg.ProjectID},
		logger: logger,
	}
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return newSession(cfg, store), nil
}

// mustSession opens a session or exits.
func mustSession() *session {
	s, err := openSession()
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close store", "error", err)
	}
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	var e *engine.Error
	if errors.As(err, &e) {
		fmt.Fprintf(os.Stderr, "error: %s: %s: %s\n", msg, e.Kind, e.Message)
	} else {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	}
	os.Exit(1)
}

// readContent takes content from args, falling back to piped stdin.
func readContent(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := stdin.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// metadataFlags registers the shared metadata flags on cmd.
func metadataFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().Int("priority", 0, "Priority 1 (low) to 3 (high); default 2")
	cmd.Flags().String("source", "", "Where the memory came from")
	cmd.Flags().StringSlice("related", nil, "Related memory ids")
}

func metadataFromFlags(cmd *cobra.Command) *model.Metadata {
	tags, _ := cmd.Flags().GetString("tags")
	priority, _ := cmd.Flags().GetInt("priority")
	source, _ := cmd.Flags().GetString("source")
	related, _ := cmd.Flags().GetStringSlice("related")

	md := &model.Metadata{Tags: splitTags(tags), Priority: priority, Source: source, RelatedIDs: related}
	if len(md.Tags) == 0 && md.Priority == 0 && md.Source == "" && len(md.RelatedIDs) == 0 {
		return nil
	}
	return md
}

func parseScopes(ss []string) ([]model.Scope, error) {
	var out []model.Scope
	for _, s := range ss {
		sc, err := model.ParseScope(s, "")
		if err != nil {
			return nil, err
		}
		if sc != "" {
			out = append(out, sc)
		}
	}
	return out, nil
}

func parseCategories(cs []string) ([]model.Category, error) {
	var out []model.Category
	for _, c := range cs {
		cat, err := model.ParseCategory(c, "")
		if err != nil {
			return nil, err
		}
		if cat != "" {
			out = append(out, cat)
		}
	}
	return out, nil
}

// parseTime accepts RFC 3339 timestamps or a duration meaning "that long ago".
func parseTime(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: want RFC 3339 or a duration like 2h", s)
	}
	t := now.Add(-d)
	return &t, nil
}
