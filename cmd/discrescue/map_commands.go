package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"discrescue/internal/repairmap"
	"discrescue/internal/rescue"
)

func newMapCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Inspect and export repair maps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newMapShowCommand(ctx))
	cmd.AddCommand(newMapExportCommand(ctx))
	return cmd
}

// loadMap opens a map database and restores the requested session's map.
// An empty sessionID selects the most recent session.
func loadMap(ctx *commandContext, mapPath, sessionID string) (*repairmap.Session, *repairmap.Map, error) {
	path := strings.TrimSpace(mapPath)
	if path == "" {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, nil, err
		}
		_, path = rescue.DefaultArtifactPaths(cfg.Device.Path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("map database %s: %w", path, err)
	}

	store, err := repairmap.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	var session *repairmap.Session
	if strings.TrimSpace(sessionID) == "" {
		session, err = store.LatestSession(context.Background())
	} else {
		session, err = store.SessionByID(context.Background(), sessionID)
	}
	if err != nil {
		return nil, nil, err
	}

	snap, err := store.LoadSnapshot(context.Background(), session.ID)
	if err != nil {
		return nil, nil, err
	}
	m, err := repairmap.FromSnapshot(snap)
	if err != nil {
		return nil, nil, err
	}
	return session, m, nil
}

func newMapShowCommand(ctx *commandContext) *cobra.Command {
	var mapFlag string
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show session state and unreadable sector ranges",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, m, err := loadMap(ctx, mapFlag, sessionFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			counts := m.Counts()
			summary := [][2]string{
				{"Session", session.ID},
				{"Device", session.DevicePath},
				{"Stage", session.Stage},
				{"Sector size", formatCount(session.SectorSize)},
				{"Sectors", formatCount(counts.Total())},
				{"Good", formatCount(counts.Good)},
				{"Suspect", formatCount(counts.Suspect)},
				{"Bad", formatCount(counts.Bad)},
				{"Unknown", formatCount(counts.Unknown)},
				{"Updated", session.UpdatedAt.Local().Format("2006-01-02 15:04:05")},
			}
			fmt.Fprintln(out, renderSummary(summary))

			var rows [][]string
			for _, state := range []repairmap.State{repairmap.StateBad, repairmap.StateSuspect, repairmap.StateUnknown} {
				for _, run := range m.Runs(state) {
					rows = append(rows, []string{
						string(state),
						strconv.FormatInt(run.Start, 10),
						strconv.FormatInt(run.Length, 10),
					})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "Every sector recovered.")
				return nil
			}
			fmt.Fprintln(out, renderRunTable([]string{"State", "Start", "Length"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mapFlag, "map", "m", "", "Repair map database path")
	cmd.Flags().StringVar(&sessionFlag, "session", "", "Session ID (defaults to the most recent)")
	return cmd
}

// mapExport is the TOML document written by `map export`.
type mapExport struct {
	Session     string      `toml:"session"`
	Device      string      `toml:"device"`
	Stage       string      `toml:"stage"`
	SectorSize  int64       `toml:"sector_size"`
	SectorCount int64       `toml:"sector_count"`
	Runs        []exportRun `toml:"runs"`
}

type exportRun struct {
	State  string `toml:"state"`
	Start  int64  `toml:"start"`
	Length int64  `toml:"length"`
}

func newMapExportCommand(ctx *commandContext) *cobra.Command {
	var mapFlag string
	var sessionFlag string
	var outputFlag string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a repair map as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, m, err := loadMap(ctx, mapFlag, sessionFlag)
			if err != nil {
				return err
			}

			doc := mapExport{
				Session:     session.ID,
				Device:      session.DevicePath,
				Stage:       session.Stage,
				SectorSize:  session.SectorSize,
				SectorCount: session.SectorCount,
			}
			snap := m.Snapshot()
			for _, record := range snap.Runs {
				doc.Runs = append(doc.Runs, exportRun{
					State:  string(record.State),
					Start:  record.Start,
					Length: record.Length,
				})
			}

			encoded, err := toml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode map: %w", err)
			}
			if strings.TrimSpace(outputFlag) == "" {
				_, err = cmd.OutOrStdout().Write(encoded)
				return err
			}
			if err := os.WriteFile(outputFlag, encoded, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote repair map export to %s\n", outputFlag)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mapFlag, "map", "m", "", "Repair map database path")
	cmd.Flags().StringVar(&sessionFlag, "session", "", "Session ID (defaults to the most recent)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination file (defaults to stdout)")
	return cmd
}
