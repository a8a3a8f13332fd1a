package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleetline/internal/app"
	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/evidence"
	"fleetline/internal/migrate"
	"fleetline/internal/repo"
	"fleetline/internal/report"
	"fleetline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fleetline CLI",
	Long: `Fleetline tracks vessel missions with evidence-backed checklist items.
- Workspace: a .fleetline directory holding the database; fleetline.yml beside it is optional.
- Mission: a checklist assigned to a crew member on a vessel, with a due date and priority.
- Items: acknowledge, photo, video, file, and signature tasks; evidence items complete when proof is attached.
- Completion: a mission can complete only once every required item has its proof.
- Report: 'fl report <id>' renders the mission and its photos into a PDF.
- Event log: diary of changes, view with 'fl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLEETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("fleet", "default", "fleet id (used when no fleetline.yml exists)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("fleet", rootCmd.PersistentFlags().Lookup("fleet"))
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())
}

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
	}
	cmd.AddCommand(missionCreateCmd())
	cmd.AddCommand(missionListCmd())
	cmd.AddCommand(missionGetCmd())
	cmd.AddCommand(missionUpdateCmd())
	cmd.AddCommand(missionCompleteCmd())
	return cmd
}

func missionCreateCmd() *cobra.Command {
	var (
		title, desc, vessel, due, priority, notes  string
		byID, byName, byRole, toID, toName, toRole string
		items, requiredItems                       []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := parseItemFlags(items, false)
			if err != nil {
				return err
			}
			reqDrafts, err := parseItemFlags(requiredItems, true)
			if err != nil {
				return err
			}
			opts := engine.MissionCreateOptions{
				Title:        title,
				Description:  desc,
				Vessel:       vessel,
				AssignedBy:   domain.Party{ID: byID, Name: byName, Role: byRole},
				AssignedTo:   domain.Party{ID: toID, Name: toName, Role: toRole},
				DueDate:      due,
				Priority:     priority,
				MissionNotes: notes,
				Items:        append(reqDrafts, drafts...),
				ActorID:      viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&desc, "description", "", "mission description")
	cmd.Flags().StringVar(&vessel, "vessel", "", "vessel id")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority: high, medium or low")
	cmd.Flags().StringVar(&notes, "notes", "", "mission notes")
	cmd.Flags().StringVar(&byID, "by", "", "assigning party id")
	cmd.Flags().StringVar(&byName, "by-name", "", "assigning party name")
	cmd.Flags().StringVar(&byRole, "by-role", "", "assigning party role")
	cmd.Flags().StringVar(&toID, "to", "", "assignee id")
	cmd.Flags().StringVar(&toName, "to-name", "", "assignee name")
	cmd.Flags().StringVar(&toRole, "to-role", "", "assignee role")
	cmd.Flags().StringArrayVar(&items, "item", nil, "optional item as kind:text (repeatable)")
	cmd.Flags().StringArrayVar(&requiredItems, "required-item", nil, "required item as kind:text (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("vessel")
	_ = cmd.MarkFlagRequired("due")
	_ = cmd.MarkFlagRequired("by")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func parseItemFlags(specs []string, required bool) ([]engine.ItemDraft, error) {
	drafts := make([]engine.ItemDraft, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid item %q, expected kind:text", s)
		}
		drafts = append(drafts, engine.ItemDraft{Kind: parts[0], Text: parts[1], Required: required})
	}
	return drafts, nil
}

func missionListCmd() *cobra.Command {
	var f repo.MissionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				missions, err := e.ListMissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Vessel", "Assignee", "Due", "Status", "Progress"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Vessel, m.AssignedTo.ID, m.DueDate, m.Status, fmt.Sprintf("%d%%", m.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Vessel, "vessel", "", "vessel filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max missions")
	return cmd
}

func missionGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionUpdateCmd() *cobra.Command {
	var title, desc, vessel, due, priority, notes, toID, toName, toRole string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update mission metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.MissionUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &desc
			}
			if cmd.Flags().Changed("vessel") {
				opts.Vessel = &vessel
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("notes") {
				opts.MissionNotes = &notes
			}
			if cmd.Flags().Changed("to") {
				opts.AssignedTo = &domain.Party{ID: toID, Name: toName, Role: toRole}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateMission(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&desc, "description", "", "mission description")
	cmd.Flags().StringVar(&vessel, "vessel", "", "vessel id")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&notes, "notes", "", "mission notes")
	cmd.Flags().StringVar(&toID, "to", "", "assignee id")
	cmd.Flags().StringVar(&toName, "to-name", "", "assignee name")
	cmd.Flags().StringVar(&toRole, "to-role", "", "assignee role")
	return cmd
}

func missionCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Request mission completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RequestCompletion(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					var ire engine.IncompleteRequiredItemsError
					if errors.As(err, &ire) {
						fmt.Printf("mission not completable: %d required item(s) outstanding\n", ire.Outstanding)
					}
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Work with mission items",
	}
	cmd.AddCommand(itemToggleCmd())
	cmd.AddCommand(itemAttachCmd())
	cmd.AddCommand(itemNoteCmd())
	return cmd
}

func itemToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <mission-id> <item-id>",
		Short: "Toggle an acknowledge item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ToggleItem(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func itemAttachCmd() *cobra.Command {
	var file, mimeType, name, signer string
	cmd := &cobra.Command{
		Use:   "attach <mission-id> <item-id>",
		Short: "Attach evidence to an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := engine.Evidence{Signer: signer}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				ev.Data = data
				ev.Name = name
				if ev.Name == "" {
					ev.Name = filepath.Base(file)
				}
				ev.MIME = mimeType
				if ev.MIME == "" {
					ev.MIME = mime.TypeByExtension(filepath.Ext(file))
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AttachEvidence(ctx, args[0], args[1], ev, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "evidence file to upload")
	cmd.Flags().StringVar(&mimeType, "mime", "", "evidence MIME type (detected from extension by default)")
	cmd.Flags().StringVar(&name, "name", "", "evidence display name")
	cmd.Flags().StringVar(&signer, "signer", "", "typed signer name for signature items")
	return cmd
}

func itemNoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note <mission-id> <item-id> <note>",
		Short: "Set a note on an item",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			note := strings.Join(args[2:], " ")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SetItemNote(ctx, args[0], args[1], note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report <mission-id>",
		Short: "Render a mission report PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				gen := report.New(e.Evidence, e.Config.Report)
				pdf, err := gen.Generate(ctx, m)
				if err != nil {
					return err
				}
				target := out
				if target == "" {
					target = "mission-" + m.ID + ".pdf"
				}
				if err := os.WriteFile(target, pdf, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s (%d bytes)\n", target, len(pdf))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default mission-<id>.pdf)")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fleet mission counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.FleetStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Missions"})
				for _, s := range []string{domain.StatusPending, domain.StatusInProgress, domain.StatusOverdue, domain.StatusCompleted} {
					tw.AppendRow(table.Row{s, counts[s]})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect fleet configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"), viper.GetString("fleet"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate fleetline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, missionID, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, missionID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed demo missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				missions, err := app.SeedDemoFleet(ctx, e, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("seeded %d missions\n", len(missions))
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace, viper.GetString("fleet"))
			if err != nil {
				return err
			}
			e := engine.New(conn, evidence.NewSQLStore(conn), cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fleetline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
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

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace, viper.GetString("fleet"))
	if err != nil {
		return err
	}
	e := engine.New(conn, evidence.NewSQLStore(conn), cfg)
	return fn(ctx, e)
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
