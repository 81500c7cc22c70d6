package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"organigramm/internal/config"
	"organigramm/internal/domain"
	"organigramm/internal/engine"
	"organigramm/internal/engine/auth"
	"organigramm/internal/repo"
)

const defaultPracticeEnv = "ORGA_DEFAULT_PRACTICE"

func initCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a workspace with a practice and orgchart.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			id = strings.TrimSpace(id)
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(id, name)), 0o644); err != nil {
					return err
				}
			}
			cfg, err := config.FromFile(cfgPath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("actor-id")
				p, err := e.CreatePractice(ctx, engine.PracticeCreateOptions{ID: id, Name: name, ActorID: actor})
				if err != nil && !errors.Is(err, engine.ErrAlreadyExists) {
					return err
				}
				if cfg.Practice.ID == id {
					if err := e.ImportConfig(ctx, id, cfg, actor); err != nil {
						return err
					}
				}
				if err := setEnvValue(filepath.Join(workspace, envFile), defaultPracticeEnv, id); err != nil {
					return err
				}
				if p.ID == "" {
					p, err = e.GetPractice(ctx, id)
					if err != nil {
						return err
					}
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "practice id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "practice", Short: "Manage practices"}
	cmd.AddCommand(practiceCreateCmd())
	cmd.AddCommand(practiceListCmd())
	cmd.AddCommand(practiceShowCmd())
	cmd.AddCommand(practiceUseCmd())
	return cmd
}

func practiceCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create practice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePractice(ctx, engine.PracticeCreateOptions{ID: id, Name: name, ActorID: viper.GetString("actor-id")})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "practice id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func practiceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List practices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListPractices(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func practiceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active practice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPractice(cmd.Context(), func(ctx context.Context, e engine.Engine, practiceID string, _ *config.Config) error {
				p, err := e.GetPractice(ctx, practiceID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func practiceUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set the default practice for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			practiceID := strings.TrimSpace(args[0])
			if practiceID == "" {
				return fmt.Errorf("practice id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, envFile), defaultPracticeEnv, practiceID); err != nil {
				return err
			}
			fmt.Printf("Set %s=%s in %s/%s\n", defaultPracticeEnv, practiceID, workspace, envFile)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect practice config",
		Long:  "Config holds the canvas geometry, role colors and webhooks of a practice. It is stored in the database; import orgchart.yml to change it.",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configImportCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPractice(cmd.Context(), func(ctx context.Context, _ engine.Engine, _ string, cfg *config.Config) error {
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				out, err := cfg.YAML()
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import practice config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				filePath = config.Path(viper.GetString("workspace"))
			}
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withPractice(cmd.Context(), func(ctx context.Context, e engine.Engine, practiceID string, _ *config.Config) error {
				if cfg.Practice.ID != "" && cfg.Practice.ID != practiceID {
					return fmt.Errorf("%s configures practice %s, active practice is %s", filePath, cfg.Practice.ID, practiceID)
				}
				cfg.Practice.ID = practiceID
				if err := e.ImportConfig(ctx, practiceID, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (default: workspace orgchart.yml)")
	return cmd
}

func configValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config, or a YAML file with --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if filePath != "" {
				_, err = config.FromFile(filePath)
			} else {
				err = withPractice(cmd.Context(), func(ctx context.Context, _ engine.Engine, _ string, cfg *config.Config) error {
					return cfg.Validate()
				})
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "RBAC management",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPractice(cmd.Context(), func(ctx context.Context, e engine.Engine, practiceID string, _ *config.Config) error {
				m, err := e.Repo.Membership(ctx, nil, practiceID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withPractice(cmd.Context(), func(ctx context.Context, e engine.Engine, practiceID string, _ *config.Config) error {
				actor := viper.GetString("actor-id")
				if err := e.Auth.Require(ctx, practiceID, actor, auth.PracticeAdmin); err != nil {
					return err
				}
				if err := e.GrantRole(ctx, practiceID, target, role, actor); err != nil {
					return err
				}
				fmt.Printf("granted %s to %s in %s\n", role, target, practiceID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id (admin, editor, viewer)")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withPractice(cmd.Context(), func(ctx context.Context, e engine.Engine, practiceID string, _ *config.Config) error {
				actor := viper.GetString("actor-id")
				if err := e.Auth.Require(ctx, practiceID, actor, auth.PracticeAdmin); err != nil {
					return err
				}
				return e.RevokeRole(ctx, practiceID, target, role, actor)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		Long:  "The secret is printed once; only its hash is stored. Send it as X-Api-Key or pass it to --token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "secret": secret})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	list := &cobra.Command{
		Use:   "list",
		Short: "List the current actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of the current actor's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAPIKey(ctx, viper.GetString("actor-id"), args[0])
			})
		},
	}
	cmd.AddCommand(create, list, del)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every practice, position, config and role change is recorded here.",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPractice(cmd.Context(), func(ctx context.Context, e engine.Engine, practiceID string, _ *config.Config) error {
				f.PracticeID = practiceID
				items, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printEvents(items)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func printEvents(items []domain.Event) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
	for _, evt := range items {
		tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
	}
	tw.Render()
}
