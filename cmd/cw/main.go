package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"curseward/internal/app"
	"curseward/internal/config"
	"curseward/internal/db"
	"curseward/internal/engine"
	"curseward/internal/migrate"
	"curseward/internal/repo"
	"curseward/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cw",
	Short: "Curseward CLI",
	Long: `Curseward is the administrative record of a curse-response registry.
- Workspace: your .curseward directory with only the database; the registry
  config lives in the DB and is imported from curseward.yml explicitly.
- Curses: detected threats, graded four..special, tied to a location.
- Requests: a pending response to a curse; statuses go pending -> assigning
  -> closed. Moving to assigning spawns a mission and puts one sorcerer in
  charge; moving back to pending undoes both.
- Missions: the operational response; pending -> in_progress ->
  succeeded/failed/canceled. Canceling hands the originating request back to
  pending.
- Resources: tools, talismans, vehicles, supplies; transfers move them
  between locations and keep the paper trail.
- Event log: diary of every change, view with 'cw log tail'.`,
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
	viper.SetEnvPrefix("CURSEWARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("registry", "", "registry id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("registry", rootCmd.PersistentFlags().Lookup("registry"))
}

func registerCommands() {
	rootCmd.AddCommand(sorcererCmd())
	rootCmd.AddCommand(curseCmd())
	rootCmd.AddCommand(locationCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(resourceCmd())
	rootCmd.AddCommand(transferCmd())
	rootCmd.AddCommand(techniqueCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func sorcererCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "sorcerer",
		Short: "Manage sorcerers",
		Long:  "Sorcerers are the registry's field personnel, graded four..special. One is put in charge when a request moves to assigning; any number join a mission when it goes in_progress.",
	}
	s.AddCommand(sorcererCreateCmd())
	s.AddCommand(sorcererListCmd())
	s.AddCommand(sorcererShowCmd())
	s.AddCommand(sorcererUpdateCmd())
	s.AddCommand(sorcererDeleteCmd())
	return s
}

func sorcererCreateCmd() *cobra.Command {
	var name, grade, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a sorcerer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.RegisterSorcerer(ctx, name, grade, status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "sorcerer name")
	cmd.Flags().StringVar(&grade, "grade", "", "grade (four, three, two, semi_one, one, special)")
	cmd.Flags().StringVar(&status, "status", "active", "status (active, injured, retired)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("grade")
	return cmd
}

func sorcererListCmd() *cobra.Command {
	var grade, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sorcerers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSorcerers(ctx, grade, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Grade", "Status"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Grade, colorStatus(s.Status)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&grade, "grade", "", "grade filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func sorcererShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a sorcerer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetSorcerer(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sorcererUpdateCmd() *cobra.Command {
	var grade, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a sorcerer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var gradePtr, statusPtr *string
			if cmd.Flags().Changed("grade") {
				gradePtr = &grade
			}
			if cmd.Flags().Changed("status") {
				statusPtr = &status
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.UpdateSorcerer(ctx, id, gradePtr, statusPtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&grade, "grade", "", "new grade")
	cmd.Flags().StringVar(&status, "status", "", "new status (active, injured, retired)")
	return cmd
}

func sorcererDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sorcerer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteSorcerer(ctx, id)
			})
		},
	}
	return cmd
}

func curseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "curse",
		Short: "Manage curses",
		Long:  "Curses are detected threats. Register one, raise a request against it, and mark it exorcised once a mission has dealt with it.",
	}
	c.AddCommand(curseCreateCmd())
	c.AddCommand(curseListCmd())
	c.AddCommand(curseShowCmd())
	c.AddCommand(curseExorciseCmd())
	c.AddCommand(curseDeleteCmd())
	return c
}

func curseCreateCmd() *cobra.Command {
	var name, grade string
	var locationID int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a detected curse",
		RunE: func(cmd *cobra.Command, args []string) error {
			var locPtr *int64
			if cmd.Flags().Changed("location") {
				locPtr = &locationID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RegisterCurse(ctx, name, grade, locPtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "curse name")
	cmd.Flags().StringVar(&grade, "grade", "", "grade (four, three, two, semi_one, one, special)")
	cmd.Flags().Int64Var(&locationID, "location", 0, "location id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("grade")
	return cmd
}

func curseListCmd() *cobra.Command {
	var grade, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List curses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCurses(ctx, grade, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Grade", "Status", "Location"})
				for _, c := range items {
					loc := ""
					if c.LocationID != nil {
						loc = strconv.FormatInt(*c.LocationID, 10)
					}
					tw.AppendRow(table.Row{c.ID, c.Name, c.Grade, colorStatus(c.Status), loc})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&grade, "grade", "", "grade filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (detected, exorcised)")
	return cmd
}

func curseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a curse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetCurse(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func curseExorciseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exorcise <id>",
		Short: "Mark a curse exorcised",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.MarkCurseExorcised(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func curseDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a curse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteCurse(ctx, id)
			})
		},
	}
	return cmd
}

func locationCmd() *cobra.Command {
	l := &cobra.Command{Use: "location", Short: "Manage locations"}
	l.AddCommand(locationCreateCmd())
	l.AddCommand(locationListCmd())
	l.AddCommand(locationShowCmd())
	l.AddCommand(locationDeleteCmd())
	return l
}

func locationCreateCmd() *cobra.Command {
	var name, prefecture string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.CreateLocation(ctx, name, prefecture, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "location name")
	cmd.Flags().StringVar(&prefecture, "prefecture", "", "prefecture")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func locationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListLocations(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func locationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				l, err := r.GetLocation(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	return cmd
}

func locationDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteLocation(ctx, id)
			})
		},
	}
	return cmd
}

func requestCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "request",
		Short: "Manage requests",
		Long:  "A request is a pending response to a curse. 'assign' spawns the mission and names a sorcerer in charge; 'reopen' undoes that; 'close' ends the request once the mission is running.",
	}
	r.AddCommand(requestCreateCmd())
	r.AddCommand(requestListCmd())
	r.AddCommand(requestShowCmd())
	r.AddCommand(requestAssignCmd())
	r.AddCommand(requestReopenCmd())
	r.AddCommand(requestCloseCmd())
	r.AddCommand(requestDeleteCmd())
	return r
}

func requestCreateCmd() *cobra.Command {
	var curseID int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a request for a curse",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.CreateRequest(ctx, curseID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().Int64Var(&curseID, "curse", 0, "curse id")
	_ = cmd.MarkFlagRequired("curse")
	return cmd
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Curse", "Status", "Updated"})
				for _, req := range items {
					tw.AppendRow(table.Row{req.ID, req.CurseID, colorStatus(req.Status), req.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().Int64Var(&f.CurseID, "curse", 0, "curse filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				req, err := r.GetRequest(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func requestAssignCmd() *cobra.Command {
	var sorcererID int64
	var urgency string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Move a request to assigning, spawning its mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.TransitionRequest(ctx, engine.RequestTransitionOptions{
					ID:                 id,
					Status:             engine.StatusRequestAssigning,
					AssignedSorcererID: &sorcererID,
					Urgency:            urgency,
					ActorID:            viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("request %d: %s\n", res.Request.ID, colorStatus(res.Request.Status))
				if res.Assigning != nil {
					fmt.Printf("mission %d created, assignment %d in charge\n", res.Assigning.MissionID, res.Assigning.AssignmentID)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&sorcererID, "sorcerer", 0, "sorcerer put in charge")
	cmd.Flags().StringVar(&urgency, "urgency", "", "mission urgency")
	_ = cmd.MarkFlagRequired("sorcerer")
	_ = cmd.MarkFlagRequired("urgency")
	return cmd
}

func requestReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Move an assigning request back to pending, deleting its mission",
		Args:  cobra.ExactArgs(1),
		RunE:  requestSimpleTransition(engine.StatusRequestPending),
	}
	return cmd
}

func requestCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close an assigning request",
		Args:  cobra.ExactArgs(1),
		RunE:  requestSimpleTransition(engine.StatusRequestClosed),
	}
	return cmd
}

func requestSimpleTransition(status string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			res, err := e.TransitionRequest(ctx, engine.RequestTransitionOptions{
				ID:      id,
				Status:  status,
				ActorID: viper.GetString("actor-id"),
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("request %d: %s\n", res.Request.ID, colorStatus(res.Request.Status))
			return nil
		})
	}
}

func requestDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a request (cancels its mission if assigning)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRequest(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long:  "Missions are the operational response. 'start' records the site and the crew; 'succeed', 'fail' and 'cancel' close the mission, cancel handing a linked request back to pending.",
	}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionStartCmd())
	m.AddCommand(missionCloseCmd("succeed", engine.StatusMissionSucceeded))
	m.AddCommand(missionCloseCmd("fail", engine.StatusMissionFailed))
	m.AddCommand(missionCloseCmd("cancel", engine.StatusMissionCanceled))
	return m
}

func missionCreateCmd() *cobra.Command {
	var urgency string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission without a backing request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, urgency, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&urgency, "urgency", "", "urgency (defaults from config)")
	return cmd
}

func missionListCmd() *cobra.Command {
	var f repo.MissionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Urgency", "Location", "Started", "Ended"})
				for _, m := range items {
					loc := ""
					if m.LocationID != nil {
						loc = strconv.FormatInt(*m.LocationID, 10)
					}
					ended := ""
					if m.EndedAt != nil {
						ended = *m.EndedAt
					}
					tw.AppendRow(table.Row{m.ID, colorStatus(m.Status), m.Urgency, loc, m.StartedAt, ended})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Urgency, "urgency", "", "urgency filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a mission and its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				m, err := r.GetMission(ctx, id)
				if err != nil {
					return err
				}
				assignments, err := r.ListMissionAssignments(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"mission":     m,
					"assignments": assignments,
				})
			})
		},
	}
	return cmd
}

func missionStartCmd() *cobra.Command {
	var locationID int64
	var sorcererIDs []int64
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Move a mission to in_progress with a site and a crew",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var locPtr *int64
			if cmd.Flags().Changed("location") {
				locPtr = &locationID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.TransitionMission(ctx, engine.MissionTransitionOptions{
					ID:          id,
					Status:      engine.StatusMissionInProgress,
					LocationID:  locPtr,
					SorcererIDs: sorcererIDs,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("mission %d: %s\n", res.Mission.ID, colorStatus(res.Mission.Status))
				if res.InProgress != nil {
					fmt.Printf("assignments: %v\n", res.InProgress.MissionAssignmentIDs)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&locationID, "location", 0, "mission site")
	cmd.Flags().Int64SliceVar(&sorcererIDs, "sorcerer", []int64{}, "sorcerer id (repeatable)")
	return cmd
}

func missionCloseCmd(verb, status string) *cobra.Command {
	var events, collateral, endedAt string
	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("Move an in_progress mission to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.TransitionMission(ctx, engine.MissionTransitionOptions{
					ID:     id,
					Status: status,
					Closing: engine.MissionClosingFields{
						Events:           events,
						CollateralDamage: collateral,
						EndedAt:          endedAt,
					},
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("mission %d: %s\n", res.Mission.ID, colorStatus(res.Mission.Status))
				if res.ReopenedRequestID != nil {
					fmt.Printf("request %d reopened\n", *res.ReopenedRequestID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&events, "events", "", "mission event notes")
	cmd.Flags().StringVar(&collateral, "collateral", "", "collateral damage notes")
	cmd.Flags().StringVar(&endedAt, "ended-at", "", "end timestamp (RFC3339)")
	return cmd
}

func resourceCmd() *cobra.Command {
	r := &cobra.Command{Use: "resource", Short: "Manage resources"}
	r.AddCommand(resourceCreateCmd())
	r.AddCommand(resourceListCmd())
	r.AddCommand(resourceShowCmd())
	r.AddCommand(resourceUpdateCmd())
	r.AddCommand(resourceDeleteCmd())
	return r
}

func resourceCreateCmd() *cobra.Command {
	var name, kind string
	var quantity int
	var locationID int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			var locPtr *int64
			if cmd.Flags().Changed("location") {
				locPtr = &locationID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateResource(ctx, name, kind, quantity, locPtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "resource name")
	cmd.Flags().StringVar(&kind, "kind", "", "kind (cursed_tool, talisman, vehicle, supply)")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "quantity")
	cmd.Flags().Int64Var(&locationID, "location", 0, "home location id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func resourceListCmd() *cobra.Command {
	var kind string
	var locationID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListResources(ctx, kind, locationID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Kind", "Qty", "Location"})
				for _, res := range items {
					loc := ""
					if res.LocationID != nil {
						loc = strconv.FormatInt(*res.LocationID, 10)
					}
					tw.AppendRow(table.Row{res.ID, res.Name, res.Kind, res.Quantity, loc})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "kind filter")
	cmd.Flags().Int64Var(&locationID, "location", 0, "location filter")
	return cmd
}

func resourceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				res, err := r.GetResource(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func resourceUpdateCmd() *cobra.Command {
	var quantity int
	var locationID int64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var qtyPtr *int
			var locPtr *int64
			if cmd.Flags().Changed("quantity") {
				qtyPtr = &quantity
			}
			if cmd.Flags().Changed("location") {
				locPtr = &locationID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateResource(ctx, id, qtyPtr, locPtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().IntVar(&quantity, "quantity", 0, "new quantity")
	cmd.Flags().Int64Var(&locationID, "location", 0, "new home location")
	return cmd
}

func resourceDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteResource(ctx, id)
			})
		},
	}
	return cmd
}

func transferCmd() *cobra.Command {
	t := &cobra.Command{Use: "transfer", Short: "Move resources between locations"}
	t.AddCommand(transferCreateCmd())
	t.AddCommand(transferListCmd())
	t.AddCommand(transferShowCmd())
	return t
}

func transferCreateCmd() *cobra.Command {
	var resourceID, toLocationID int64
	var quantity int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Transfer a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.TransferResource(ctx, resourceID, toLocationID, quantity, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&resourceID, "resource", 0, "resource id")
	cmd.Flags().Int64Var(&toLocationID, "to-location", 0, "destination location id")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "quantity moved")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("to-location")
	return cmd
}

func transferListCmd() *cobra.Command {
	var resourceID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTransfers(ctx, resourceID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().Int64Var(&resourceID, "resource", 0, "resource filter")
	return cmd
}

func transferShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTransfer(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func techniqueCmd() *cobra.Command {
	t := &cobra.Command{Use: "technique", Short: "Manage cursed techniques"}
	t.AddCommand(techniqueCreateCmd())
	t.AddCommand(techniqueListCmd())
	t.AddCommand(techniqueDeleteCmd())
	return t
}

func techniqueCreateCmd() *cobra.Command {
	var sorcererID int64
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a technique for a sorcerer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTechnique(ctx, sorcererID, name, description, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&sorcererID, "sorcerer", 0, "sorcerer id")
	cmd.Flags().StringVar(&name, "name", "", "technique name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("sorcerer")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func techniqueListCmd() *cobra.Command {
	var sorcererID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List techniques",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTechniques(ctx, sorcererID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().Int64Var(&sorcererID, "sorcerer", 0, "sorcerer filter")
	return cmd
}

func techniqueDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a technique",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTechnique(ctx, id)
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (secret shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key, secret, err := r.MintAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "secret": secret})
				}
				fmt.Printf("api key %s created\nsecret (save it, not shown again): %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect registry config",
		Long:  "Config is the rulebook (stored in DB): registry id/kind, the grade catalog, mission urgency levels, and resource kinds. Import from curseward.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import registry config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertConfig(ctx, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
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
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: requests, missions, assignments, transfers, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
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
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, viper.GetString("registry"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("CURSEWARD_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CURSEWARD_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Curseward API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
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
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, viper.GetString("registry"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func colorStatus(s string) string {
	switch s {
	case "pending", "detected":
		return color.YellowString(s)
	case "assigning", "in_progress":
		return color.CyanString(s)
	case "closed", "succeeded", "exorcised", "active":
		return color.GreenString(s)
	case "failed", "injured":
		return color.RedString(s)
	case "canceled", "retired":
		return color.HiBlackString(s)
	}
	return s
}
