package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/minicluster/pkg/state"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Kill leaked node processes from earlier runs",
	Long: `Scan the on-disk process registry for nodes spawned by runs that
never closed their cluster (crashed tests, SIGKILLed supervisors) and
kill any that are still alive.

The registry records the kernel start time of every spawned PID, so a
PID recycled by an unrelated process is recognized and left alone.`,
	RunE: runReap,
}

func init() {
	reapCmd.Flags().String("registry", state.DefaultPath(), "Process registry database")

	rootCmd.AddCommand(reapCmd)
}

func runReap(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("registry")

	reg, err := state.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open process registry: %v", err)
	}
	defer reg.Close()

	killed, err := state.Reap(context.Background(), reg)
	if err != nil {
		return fmt.Errorf("reap finished with errors: %v", err)
	}

	if killed == 0 {
		fmt.Println("No leaked processes found")
	} else {
		fmt.Printf("✓ Killed %d leaked process(es)\n", killed)
	}
	return nil
}
