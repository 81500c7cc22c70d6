package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"organigramm/internal/app"
	"organigramm/internal/config"
	"organigramm/internal/db"
	"organigramm/internal/engine"
	"organigramm/internal/migrate"
	"organigramm/internal/orgchart"
	organigrammsdk "organigramm/sdk/go"
)

const envFile = ".env"

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "orga",
	Short: "Organigramm CLI",
	Long: `Organigramm keeps the organizational chart of a practice.
- Practice: the tenant; every position, event and role binding belongs to one.
- Position: a box in the chart with a title, an optional department, an
  optional holder (user or team) and an optional parent it reports to.
- Chart: positions are linked into a forest, laid out top-down and joined by
  connector lines; 'orga chart' draws it in the terminal.
- Config: orgchart.yml holds the canvas geometry, role colors and webhooks;
  it is stored per practice and imported with 'orga config import'.
- Event log: every change is recorded, view it with 'orga log tail'.
Position commands work on the local workspace database, or on a server when
--remote (ORGA_REMOTE_URL) is set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := loadEnv(workspace); err != nil {
			return err
		}
		l, err := newLogger(viper.GetString("log-level"))
		if err != nil {
			return err
		}
		logger = l
		if viper.GetString("remote") == "" && viper.GetString("dsn") == "" {
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ORGA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", app.DefaultActor, "actor identifier")
	flags.StringP("practice", "p", "", "practice id (overrides ORGA_DEFAULT_PRACTICE)")
	flags.String("dsn", "", "database DSN; postgres:// URLs use PostgreSQL")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("remote", "", "server base URL; position commands then go over HTTP")
	flags.String("token", "", "bearer token or API key for --remote")
	for _, name := range []string{"workspace", "json", "actor-id", "practice", "dsn", "log-level", "remote", "token"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	_ = viper.BindEnv("remote", "ORGA_REMOTE_URL")
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(practiceCmd())
	rootCmd.AddCommand(positionCmd())
	rootCmd.AddCommand(chartCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

// loadEnv reads the workspace .env without overriding variables that are
// already set.
func loadEnv(workspace string) error {
	path := filepath.Join(workspace, envFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// --- helpers ---

func practiceOverride() string {
	if p := strings.TrimSpace(viper.GetString("practice")); p != "" {
		return p
	}
	return strings.TrimSpace(viper.GetString("default-practice"))
}

func openEngine(ctx context.Context) (engine.Engine, func(), error) {
	workspace := viper.GetString("workspace")
	conn, dialect, err := db.Open(db.Config{Workspace: workspace, DSN: viper.GetString("dsn")})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	e := engine.New(conn, dialect)
	e.Logger = logger
	return e, func() { conn.Close() }, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, e)
}

// withPractice resolves the active practice and its stored config.
func withPractice(ctx context.Context, fn func(context.Context, engine.Engine, string, *config.Config) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		practiceID, cfg, err := app.ResolvePractice(ctx, e, viper.GetString("workspace"), practiceOverride(), viper.GetString("actor-id"))
		if err != nil {
			return err
		}
		return fn(ctx, e, practiceID, cfg)
	})
}

func remoteClient() *organigrammsdk.Client {
	c := organigrammsdk.New(viper.GetString("remote"))
	token := strings.TrimSpace(viper.GetString("token"))
	if strings.HasPrefix(token, "orga_") {
		c.APIKey = token
	} else {
		c.BearerToken = token
	}
	return c
}

// chartSource is what position, chart and stats commands run against.
type chartSource struct {
	editor     *orgchart.Editor
	practiceID string
	palette    orgchart.Palette
	remote     *organigrammsdk.Client
	engine     *engine.Engine
}

// withEditor loads an Editor for the active practice, either over HTTP or on
// the local database.
func withEditor(ctx context.Context, fn func(context.Context, chartSource) error) error {
	if viper.GetString("remote") != "" {
		practiceID := practiceOverride()
		if practiceID == "" {
			return fmt.Errorf("--practice is required with --remote")
		}
		client := remoteClient()
		src := chartSource{
			editor:     orgchart.NewEditor(client, practiceID),
			practiceID: practiceID,
			palette:    orgchart.DefaultPalette,
			remote:     client,
		}
		if err := src.editor.Load(ctx); err != nil {
			return failure(orgchart.OpLoad, err)
		}
		return fn(ctx, src)
	}
	return withPractice(ctx, func(ctx context.Context, e engine.Engine, practiceID string, cfg *config.Config) error {
		backend := app.LocalPersistence{Engine: e, ActorID: viper.GetString("actor-id")}
		src := chartSource{
			editor:     orgchart.NewEditor(backend, practiceID),
			practiceID: practiceID,
			palette:    cfg.Palette(),
			engine:     &e,
		}
		if err := src.editor.Load(ctx); err != nil {
			return failure(orgchart.OpLoad, err)
		}
		return fn(ctx, src)
	})
}

// failure logs the cause and returns the short user-facing message.
func failure(op orgchart.Op, err error) error {
	logger.Debug("editor operation failed", zap.String("op", string(op)), zap.Error(err))
	return fmt.Errorf("%s: %w", orgchart.FailureMessage(op, err), err)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
