package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/accrt/portal/internal/dataset"
	"github.com/accrt/portal/internal/handler"
	appI18n "github.com/accrt/portal/internal/i18n"
	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/portal"
	"github.com/accrt/portal/internal/roster"
	"github.com/accrt/portal/internal/store"
	"github.com/accrt/portal/internal/submission"
)

// cliSession is the session used by operator commands run on the host.
var cliSession = model.Session{User: "cli", Docent: true}

func main() {
	// A missing .env is fine; flags, env and config files still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "accrt",
		Short: "Clinical-reasoning submission portal for ACCR-T simulator evaluations",
	}

	serve := serveCmd()
	root.AddCommand(serve, submitCmd(), exportCmd(), statsCmd(), migrateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `accrt --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func commonFlags(f *pflag.FlagSet) {
	f.StringP("store", "s", "registros.csv", "Record store (path.csv, path.xlsx, path.db, sqlite:PATH, postgres://...)")
	f.String("timezone", "America/Bogota", "Time zone for audit stamps and date filters")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func filterFlags(f *pflag.FlagSet) {
	f.StringSlice("group", nil, "Rotation groups to include (repeatable)")
	f.StringSlice("student", nil, "Student names or codes to include (repeatable)")
	f.StringSlice("case", nil, "Case IDs to include (repeatable)")
	f.StringSlice("level", nil, "Difficulty levels to include (repeatable)")
	f.String("min-diagnostic", "", "Minimum diagnostic score")
	f.String("min-therapeutic", "", "Minimum therapeutic score")
	f.String("min-total", "", "Minimum total score")
	f.String("from", "", "First date to include (YYYY-MM-DD)")
	f.String("to", "", "Last date to include (YYYY-MM-DD)")
	f.String("bias-sentinel", dataset.DefaultSentinel, "Bias token meaning no bias detected")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP submission and query server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("roster", "", "Student roster file (JSON object or CSV code,name)")
	f.StringP("lang", "l", "es", "Default message language (es, en)")
	f.String("docent-user", "docente", "Docent login name")
	f.String("docent-password", "", "Docent password or bcrypt hash (or set ACCRT_DOCENT_PASSWORD)")
	f.String("bias-sentinel", dataset.DefaultSentinel, "Bias token meaning no bias detected")
	f.Int("store-retries", 2, "Extra append attempts when the store is unavailable")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /accrt)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	return cmd
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Build and store one submission from a simulator JSON file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.String("roster", "", "Student roster file (JSON object or CSV code,name)")
	f.String("code", "", "Student code")
	f.String("name", "", "Student name, used when the roster has no entry")
	f.String("group", "", "Rotation group (A-P)")
	f.String("start", "", "Case start time (HH:MM)")
	f.String("end", "", "Case end time (HH:MM)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered records as CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	commonFlags(f)
	filterFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print count, score means and bias ranking as JSON",
		RunE:  runStats,
	}
	f := cmd.Flags()
	commonFlags(f)
	filterFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every row of an older store into a store with the current column layout",
		RunE:  runMigrate,
	}
	f := cmd.Flags()
	f.String("from", "", "Source store")
	f.String("to", "", "Destination store")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ACCRT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("accrt")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/accrt")
	v.AddConfigPath("/etc/accrt")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func loadLocation(v *viper.Viper) (*time.Location, error) {
	name := v.GetString("timezone")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}

// openService opens the store and wires the builder and service. The caller
// closes the returned store.
func openService(ctx context.Context, v *viper.Viper) (*portal.Service, store.Store, error) {
	loc, err := loadLocation(v)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, v.GetString("store"))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	r, err := roster.Load(v.GetString("roster"))
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("load roster: %w", err)
	}
	svc := portal.New(st, submission.NewBuilder(r, loc), portal.Config{
		Location:     loc,
		BiasSentinel: v.GetString("bias-sentinel"),
		StoreRetries: v.GetInt("store-retries"),
	})
	return svc, st, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, st, err := openService(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer st.Close()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h, err := handler.New(svc, handler.Config{
		DocentUser:     v.GetString("docent-user"),
		DocentPassword: v.GetString("docent-password"),
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"store", v.GetString("store"),
		"lang", lang,
		"timezone", svc.Location().String(),
		"store_retries", v.GetInt("store-retries"),
		"base_path", basePath,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runSubmit(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read submission: %w", err)
	}

	svc, st, err := openService(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer st.Close()

	conf, err := svc.Submit(cmd.Context(), string(data),
		model.Identity{Code: v.GetString("code"), Name: v.GetString("name"), Group: v.GetString("group")},
		model.AuditTimes{Start: v.GetString("start"), End: v.GetString("end")},
	)
	if err != nil {
		return err
	}
	return writeJSON(cmd, "-", conf)
}

// cliFilter reuses the HTTP query parameter parsing for filter flags.
func cliFilter(v *viper.Viper, loc *time.Location) (model.Filter, error) {
	q := url.Values{}
	for _, key := range []string{"group", "student", "case", "level"} {
		q[key] = v.GetStringSlice(key)
	}
	for _, key := range []string{"min-diagnostic", "min-therapeutic", "min-total", "from", "to"} {
		if s := v.GetString(key); s != "" {
			q.Set(strings.ReplaceAll(key, "-", "_"), s)
		}
	}
	return dataset.ParseFilter(q, loc)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, st, err := openService(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := cliFilter(v, svc.Location())
	if err != nil {
		return err
	}
	ds, err := svc.Query(cmd.Context(), cliSession, f)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}

	w, closeFn, err := output(cmd, v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeFn()
	if err := dataset.WriteCSV(w, ds); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	slog.Info("exported records", "rows", ds.Len())
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, st, err := openService(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := cliFilter(v, svc.Location())
	if err != nil {
		return err
	}
	rep, err := svc.Report(cmd.Context(), cliSession, f)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	return writeJSON(cmd, v.GetString("output"), rep)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	src, err := store.Open(ctx, v.GetString("from"))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	dst, err := store.Open(ctx, v.GetString("to"))
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	n, err := store.Export(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("migrated records", "rows", n, "from", v.GetString("from"), "to", v.GetString("to"),
		"schema_version", store.SchemaVersion)
	return nil
}

func output(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func writeJSON(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	w, closeFn, err := output(cmd, path)
	if err != nil {
		return err
	}
	defer closeFn()
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
