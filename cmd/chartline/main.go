package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"chartline/internal/app"
	"chartline/internal/catalog"
	"chartline/internal/config"
	"chartline/internal/db"
	"chartline/internal/domain"
	"chartline/internal/engine"
	"chartline/internal/registry"
	"chartline/internal/repo"
	"chartline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "chartline",
	Short: "Chartline CLI",
	Long: `Chartline turns plain-language chart requests into chart definitions and keeps an
approved library of them per organization.
Core concepts:
- Catalog: the built-in, read-only set of curated chart templates grouped by category.
- Classification: a keyword heuristic that guesses the chart shape and business category of a prompt.
- Generation: a chart definition (config, sample data, field requirements) synthesized from a classification.
- Library: the organization's saved artifacts, bucketed by source and filtered to what the viewer may see.
- Visibility: private, team, organization or public; it decides the default view/use/modify/approve grants.
- Approval: draft -> pending -> approved/rejected; elevated roles (admin, manager, team_lead) decide.
- Event log: every committed change, view with 'chartline log tail'.`,
}

var setupOnce sync.Once

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

// execute runs the command line in args. Cancelling ctx stops a running server.
func execute(ctx context.Context, args []string) error {
	setupOnce.Do(func() {
		cobra.OnInitialize(initConfig)
		addPersistentFlags()
		registerCommands()
	})
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() {
	viper.SetEnvPrefix("CHARTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.StringP("config", "c", "", "config file (defaults to <workspace>/chartline.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("viewer-id", "local-user", "viewer identifier")
	flags.String("viewer-role", "analyst", "viewer role")
	flags.String("org", "default", "organization id")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "config", "json", "viewer-id", "viewer-role", "org", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(libraryCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(installCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(orgsCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a workspace with a default chartline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if secret := os.Getenv("CHARTLINE_JWT_SECRET"); secret != "" {
				cfg.Server.JWTSecret = secret
			}
			if cfg.Server.JWTSecret == "" && !cfg.Server.AllowDevHeaders {
				return fmt.Errorf("CHARTLINE_JWT_SECRET or server.jwt_secret is required for bearer auth")
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: cfg.Server.BasePath,
				Logger:   a.Logger.Named("http"),
				Auth: server.AuthConfig{
					JWTSecret:       cfg.Server.JWTSecret,
					AllowDevHeaders: cfg.Server.AllowDevHeaders,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			a.Logger.Info("serving chartline api",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath),
				zap.Bool("dev_headers", cfg.Server.AllowDevHeaders))
			fmt.Printf("Serving Chartline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the current viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret := cfg.Server.JWTSecret
			if env := os.Getenv("CHARTLINE_JWT_SECRET"); env != "" {
				secret = env
			}
			token, err := server.SignToken(secret, currentViewer(), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func catalogCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "catalog",
		Short: "Browse built-in templates",
	}
	c.AddCommand(&cobra.Command{
		Use:   "categories",
		Short: "List template categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cats := e.Catalog.Categories()
				if viper.GetBool("json") {
					return printJSON(cats)
				}
				tw := newTable(table.Row{"ID", "Name", "Templates"})
				for _, c := range cats {
					tw.AppendRow(table.Row{c.ID, c.Name, len(c.Templates)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	})

	var f catalog.Filter
	var category, shape string
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search templates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Query = args[0]
			}
			if category != "" {
				c, err := domain.ParseCategory(category)
				if err != nil {
					return err
				}
				f.Category = c
			}
			if shape != "" {
				s, err := domain.ParseShape(shape)
				if err != nil {
					return err
				}
				f.Shape = s
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printTemplates(e.Catalog.Search(f))
			})
		},
	}
	search.Flags().StringVar(&category, "category", "", "category filter")
	search.Flags().StringVar(&shape, "shape", "", "shape filter")
	search.Flags().StringSliceVar(&f.Tags, "tag", nil, "tag filter (repeatable)")
	search.Flags().Float64Var(&f.MinRating, "min-rating", 0, "minimum rating")
	c.AddCommand(search)

	for _, ranked := range []struct {
		name string
		list func(*catalog.Catalog) []domain.Template
	}{
		{"featured", (*catalog.Catalog).Featured},
		{"popular", (*catalog.Catalog).Popular},
		{"recent", (*catalog.Catalog).Recent},
	} {
		c.AddCommand(&cobra.Command{
			Use:   ranked.name,
			Short: "List " + ranked.name + " templates",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					return printTemplates(ranked.list(e.Catalog))
				})
			},
		})
	}

	c.AddCommand(&cobra.Command{
		Use:   "show <template-id>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, ok := e.Catalog.Template(args[0])
				if !ok {
					return fmt.Errorf("template %s: %w", args[0], domain.ErrNotFound)
				}
				return printJSON(t)
			})
		},
	})
	return c
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <prompt>",
		Short: "Classify a chart request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res := e.Classify(strings.Join(args, " "))
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("shape: %s\ncategory: %s\nconfidence: %.2f\nkeywords: %s\n",
					res.Shape, res.Category, res.Confidence, strings.Join(res.Keywords, ", "))
				return nil
			})
		},
	}
}

func generateCmd() *cobra.Command {
	var req engine.GenerateRequest
	var visibility string
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a chart definition, optionally saving it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vis, err := domain.ParseVisibility(visibility)
			if err != nil {
				return err
			}
			req.Prompt = strings.Join(args, " ")
			req.Visibility = vis
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Generate(ctx, currentViewer(), req)
				if err != nil {
					return err
				}
				if !res.OK {
					return fmt.Errorf("generation failed: %s", res.Reason)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s (%s, %s)\n", res.Definition.Name, res.Definition.Shape, res.Definition.Category)
				for _, alt := range res.Alternatives {
					fmt.Printf("  alternative: %s\n", alt.Shape)
				}
				if res.Artifact != nil {
					fmt.Printf("saved %s [%s, %s]\n", res.Artifact.ID, res.Artifact.Visibility, res.Artifact.Approval.State)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&req.IncludeAlternatives, "alternatives", false, "include alternative shapes")
	cmd.Flags().BoolVar(&req.SaveToOrganization, "save", false, "save to the organization library")
	cmd.Flags().StringVar(&visibility, "visibility", "private", "private, team, organization or public")
	cmd.Flags().BoolVar(&req.RequestApproval, "request-approval", false, "submit for approval when saving")
	return cmd
}

func libraryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "library",
		Short: "Show the viewer's library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lib, err := e.Library(ctx, currentViewer())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(lib)
				}
				tw := newTable(table.Row{"Category", "ID", "Name", "Shape", "State"})
				for _, c := range lib.Categories {
					for _, t := range c.Templates {
						tw.AppendRow(table.Row{c.Name, t.ID, t.Name, t.Shape, "catalog"})
					}
					for _, a := range c.Artifacts {
						tw.AppendRow(table.Row{c.Name, a.ID, a.Definition.Name, a.Definition.Shape, a.Approval.State})
					}
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <artifact-id>",
		Short: "Show an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Get(ctx, currentViewer(), args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}

func approveCmd() *cobra.Command {
	var action, reason string
	cmd := &cobra.Command{
		Use:   "approve <artifact-id>",
		Short: "Approve, reject or request changes on a pending artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Approve(ctx, currentViewer(), domain.ApprovalRequest{
					ArtifactID: args[0],
					Action:     domain.ApprovalAction(action),
					Reason:     reason,
				})
				if err != nil {
					return err
				}
				return printArtifacts([]domain.OrgArtifact{a})
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", string(domain.ActionApprove), "approve, reject or request_changes")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with a rejection")
	return cmd
}

func submitCmd() *cobra.Command {
	return artifactActionCmd("submit", "Submit a draft or rejected artifact for review", engine.Engine.Submit)
}

func installCmd() *cobra.Command {
	return artifactActionCmd("install", "Record an install of an artifact", engine.Engine.Install)
}

func artifactActionCmd(name, short string, run func(engine.Engine, context.Context, domain.Viewer, string) (domain.OrgArtifact, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <artifact-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := run(e, ctx, currentViewer(), args[0])
				if err != nil {
					return err
				}
				return printArtifacts([]domain.OrgArtifact{a})
			})
		},
	}
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List artifacts awaiting the viewer's decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Pending(ctx, currentViewer())
				if err != nil {
					return err
				}
				return printArtifacts(items)
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Library statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Stats(ctx, currentViewer())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := newTable(table.Row{"Total", "Generated", "Approved", "Pending", "Rejected", "Draft"})
				tw.AppendRow(table.Row{s.Total, s.Generated, s.Approved, s.Pending, s.Rejected, s.Draft})
				fmt.Println(tw.Render())
				if len(s.MostUsed) > 0 {
					mu := newTable(table.Row{"Most used", "Name", "Installs"})
					for _, u := range s.MostUsed {
						mu.AppendRow(table.Row{u.ID, u.Name, u.TotalInstalls})
					}
					fmt.Println(mu.Render())
				}
				return nil
			})
		},
	}
}

func orgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orgs",
		Short: "List organizations stored in the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.DB == nil {
					return fmt.Errorf("orgs requires the %s backend", config.BackendSQLite)
				}
				items, err := repo.Repo{DB: a.DB}.ListOrgs(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Org", "Bytes", "Updated"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.OrgID, o.Size, o.UpdatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every committed change to an organization library: creations, approval decisions, submissions, versions and installs.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v := currentViewer()
				if a.DB == nil {
					items, err := a.Engine.Events(ctx, v, n)
					if err != nil {
						return err
					}
					return printJSONOrTable(items)
				}
				items, err := repo.Repo{DB: a.DB}.LatestEvents(ctx, n, 0, repo.EventFilter{
					OrgID:    v.OrgID,
					Type:     evtType,
					EntityID: entityID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter, e.g. "+registry.EventApproval)
	cmd.Flags().StringVar(&entityID, "entity-id", "", "artifact id")
	return cmd
}

// --- helpers ---

func currentViewer() domain.Viewer {
	return domain.Viewer{
		ID:    viper.GetString("viewer-id"),
		OrgID: viper.GetString("org"),
		Role:  viper.GetString("viewer-role"),
	}
}

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if viper.IsSet("workspace") || cfg.Storage.Workspace == "" {
		cfg.Storage.Workspace = workspace
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func printTemplates(items []domain.Template) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Category", "Shape", "Rating", "Downloads"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Name, t.Category, t.Shape, t.Rating, t.Downloads})
	}
	fmt.Println(tw.Render())
	return nil
}

func printArtifacts(items []domain.OrgArtifact) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Shape", "Visibility", "State", "Version", "Installs"})
	for _, a := range items {
		version := ""
		if v, ok := a.CurrentVersion(); ok {
			version = v.Version
		}
		tw.AppendRow(table.Row{a.ID, a.Definition.Name, a.Definition.Shape, a.Visibility, a.Approval.State, version, a.Usage.TotalInstalls})
	}
	fmt.Println(tw.Render())
	return nil
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
