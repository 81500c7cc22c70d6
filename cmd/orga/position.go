package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

func positionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Manage positions",
		Long:  "Positions are the boxes of the chart. A position reports to at most one parent; its level is derived from the parent.",
	}
	cmd.AddCommand(positionListCmd())
	cmd.AddCommand(positionShowCmd())
	cmd.AddCommand(positionCreateCmd())
	cmd.AddCommand(positionUpdateCmd())
	cmd.AddCommand(positionMoveCmd())
	cmd.AddCommand(positionDeleteCmd())
	cmd.AddCommand(positionCandidatesCmd())
	return cmd
}

func positionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active positions in chart order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				items := orgchart.Flatten(src.editor.Forest())
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printPositions(items)
				return nil
			})
		},
	}
}

func positionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				for _, p := range src.editor.Positions() {
					if p.ID == args[0] {
						return printJSONOrTable(p)
					}
				}
				return failure(orgchart.OpLoad, fmt.Errorf("%s: %w", args[0], orgchart.ErrNotFound))
			})
		},
	}
}

func positionCreateCmd() *cobra.Command {
	var title, department, userID, teamID, parentID, color string
	var management bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				p, err := src.editor.Create(ctx, orgchart.CreateInput{
					Title:        title,
					Department:   optionalString(department),
					UserID:       optionalString(userID),
					TeamID:       optionalString(teamID),
					ParentID:     optionalString(parentID),
					Color:        optionalString(color),
					IsManagement: management,
				})
				if err != nil {
					return failure(orgchart.OpCreate, err)
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().StringVar(&userID, "user", "", "assigned user id")
	cmd.Flags().StringVar(&teamID, "team", "", "assigned team id")
	cmd.Flags().StringVar(&parentID, "parent", "", "id of the position this one reports to")
	cmd.Flags().StringVar(&color, "color", "", "box color (#RRGGBB)")
	cmd.Flags().BoolVar(&management, "management", false, "mark as a management position")
	return cmd
}

func positionUpdateCmd() *cobra.Command {
	var title, department, userID, teamID, color string
	var order int
	var management bool
	var expected int64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a position",
		Long:  "Only the given flags are changed. Pass an empty value to clear department, user, team or color.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.PositionPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("department") {
				patch.Department = &department
			}
			if flags.Changed("user") {
				patch.UserID = &userID
			}
			if flags.Changed("team") {
				patch.TeamID = &teamID
			}
			if flags.Changed("color") {
				patch.Color = &color
			}
			if flags.Changed("order") {
				patch.DisplayOrder = &order
			}
			if flags.Changed("management") {
				patch.IsManagement = &management
			}
			if flags.Changed("expected-version") {
				patch.ExpectedVersion = &expected
			}
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				p, err := src.editor.Update(ctx, args[0], patch)
				if err != nil {
					return failure(orgchart.OpUpdate, err)
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().StringVar(&userID, "user", "", "assigned user id")
	cmd.Flags().StringVar(&teamID, "team", "", "assigned team id")
	cmd.Flags().StringVar(&color, "color", "", "box color (#RRGGBB)")
	cmd.Flags().IntVar(&order, "order", 0, "display order among siblings")
	cmd.Flags().BoolVar(&management, "management", false, "mark as a management position")
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "refuse the update unless the stored version matches")
	return cmd
}

func positionMoveCmd() *cobra.Command {
	var parentID string
	var top bool
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Change the position a position reports to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if top == (parentID != "") {
				return fmt.Errorf("exactly one of --parent or --top required")
			}
			target := strings.TrimSpace(parentID)
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				p, err := src.editor.Update(ctx, args[0], domain.PositionPatch{ParentID: &target})
				if err != nil {
					return failure(orgchart.OpUpdate, err)
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "new parent position id")
	cmd.Flags().BoolVar(&top, "top", false, "move to the top level")
	return cmd
}

func positionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a position",
		Long:  "Positions reporting to the deleted one keep their parent reference and are shown at the top level.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				if err := src.editor.Delete(ctx, args[0]); err != nil {
					return failure(orgchart.OpDelete, err)
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func positionCandidatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "candidates [id]",
		Short: "List positions a position may report to",
		Long:  "Without an id every active position is listed. With an id the position itself and everything below it are excluded.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				items := orgchart.AvailableParents(src.editor.Positions(), id)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printPositions(items)
				return nil
			})
		},
	}
}

func chartCmd() *cobra.Command {
	var legend bool
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Draw the organization chart",
		Long:  "Draws the chart with box characters. With --json the canvas geometry configured for the practice is printed instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				if viper.GetBool("json") {
					if src.remote != nil {
						c, err := src.remote.Chart(ctx, src.practiceID)
						if err != nil {
							return err
						}
						return printJSON(c)
					}
					snap, err := src.engine.Chart(ctx, src.practiceID)
					if err != nil {
						return err
					}
					return printJSON(snap)
				}
				renderer := orgchart.NewTextRenderer(os.Stdout, src.palette)
				chart := orgchart.NewChart(renderer.Measure, orgchart.TerminalSpacing)
				chart.Refresh(src.editor.Positions())
				snap := chart.Snapshot()
				if len(snap.Forest) == 0 {
					fmt.Println("no positions yet; add one with 'orga position create --title ...'")
					return nil
				}
				fmt.Print(renderer.Draw(snap))
				if legend {
					fmt.Println()
					fmt.Println(renderer.Legend(src.editor.Positions()))
				}
				if n := len(snap.Hidden); n > 0 {
					fmt.Fprintf(os.Stderr, "%d position(s) are part of a reporting cycle and not shown: %s\n", n, strings.Join(snap.Hidden, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&legend, "legend", true, "print the role color legend")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show summary counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd.Context(), func(ctx context.Context, src chartSource) error {
				s := orgchart.Summarize(src.editor.Positions())
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Positions", "Departments", "Filled", "Vacant", "Levels", "Management"})
				tw.AppendRow(table.Row{s.Positions, s.Departments, s.Filled, s.Vacant, s.Levels, s.Management})
				tw.Render()
				return nil
			})
		},
	}
}

func printPositions(items []domain.Position) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Department", "Holder", "Parent", "Level", "Order", "Version"})
	for _, p := range items {
		tw.AppendRow(table.Row{
			p.ID,
			strings.Repeat("  ", p.Level) + p.Title,
			derefString(p.Department),
			holder(p),
			derefString(p.ParentID),
			p.Level,
			p.DisplayOrder,
			p.Version,
		})
	}
	tw.Render()
}

func holder(p domain.Position) string {
	switch {
	case p.UserID != nil && *p.UserID != "":
		return *p.UserID
	case p.TeamID != nil && *p.TeamID != "":
		return "team " + *p.TeamID
	}
	return orgchart.VacantLabel
}
