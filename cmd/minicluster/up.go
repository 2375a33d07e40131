package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/minicluster/pkg/api"
	"github.com/cuemby/minicluster/pkg/cluster"
	"github.com/cuemby/minicluster/pkg/state"
	"github.com/cuemby/minicluster/pkg/types"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Build a cluster and supervise it until interrupted",
	Long: `Build a test cluster from flags or a YAML spec file and keep it
running until Ctrl+C. Flags override values from the spec file.

Examples:
  # One master, three workers
  minicluster up --workers 3 \
      --master-bin /opt/cluster/bin/master --worker-bin /opt/cluster/bin/worker

  # From a spec file, with the status server enabled
  minicluster up -f cluster.yaml --status-addr 127.0.0.1:8090`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringP("file", "f", "", "YAML cluster spec file")
	upCmd.Flags().Int("masters", 1, "Number of master nodes")
	upCmd.Flags().Int("workers", 0, "Number of worker nodes")
	upCmd.Flags().Bool("metadata", false, "Also run the metadata service")
	upCmd.Flags().String("master-bin", "", "Master binary path")
	upCmd.Flags().String("worker-bin", "", "Worker binary path")
	upCmd.Flags().String("bin-dir", "", "Root for resolving tool home directories")
	upCmd.Flags().String("scratch-dir", "", "Scratch directory (default: fresh temp dir)")
	upCmd.Flags().Bool("keep-scratch", false, "Keep the scratch directory after shutdown")
	upCmd.Flags().Duration("start-timeout", 0, "Per-node startup deadline (default 60s)")
	upCmd.Flags().Duration("stop-timeout", 0, "Graceful-stop deadline before SIGKILL (default 10s)")
	upCmd.Flags().String("status-addr", "", "Serve /statusz, /health and /metrics on this address")
	upCmd.Flags().String("credential-cache", "", "Kerberos credential-cache config path")
	upCmd.Flags().String("principal", "", "Kerberos service principal")
	upCmd.Flags().String("keytab", "", "Kerberos keytab file")
	upCmd.Flags().String("protection", "", "Wire protection level (authentication|integrity|privacy)")

	rootCmd.AddCommand(upCmd)
}

// SpecFile mirrors types.ClusterSpec for YAML consumption. Durations are
// strings in Go syntax ("90s", "2m").
type SpecFile struct {
	Masters          int               `yaml:"masters"`
	Workers          int               `yaml:"workers"`
	Metadata         bool              `yaml:"metadata"`
	MasterBinary     string            `yaml:"masterBinary"`
	WorkerBinary     string            `yaml:"workerBinary"`
	BinDir           string            `yaml:"binDir,omitempty"`
	ExtraMasterFlags []string          `yaml:"extraMasterFlags,omitempty"`
	ExtraWorkerFlags []string          `yaml:"extraWorkerFlags,omitempty"`
	MasterPorts      []int             `yaml:"masterPorts,omitempty"`
	WorkerPorts      []int             `yaml:"workerPorts,omitempty"`
	ScratchDir       string            `yaml:"scratchDir,omitempty"`
	KeepScratch      bool              `yaml:"keepScratch,omitempty"`
	StartTimeout     string            `yaml:"startTimeout,omitempty"`
	StopTimeout      string            `yaml:"stopTimeout,omitempty"`
	ExtraEnv         map[string]string `yaml:"extraEnv,omitempty"`
	Security         *SecurityFile     `yaml:"security,omitempty"`
}

// SecurityFile is the YAML form of types.SecurityConfig
type SecurityFile struct {
	CredentialCache string `yaml:"credentialCache"`
	Principal       string `yaml:"principal"`
	Keytab          string `yaml:"keytab"`
	Protection      string `yaml:"protection,omitempty"`
}

func runUp(cmd *cobra.Command, args []string) error {
	spec, err := specFromInvocation(cmd)
	if err != nil {
		return err
	}

	// Every spawn is recorded so `minicluster reap` can clean up after a
	// crashed run.
	reg, err := state.Open(state.DefaultPath())
	if err != nil {
		return fmt.Errorf("failed to open process registry: %v", err)
	}
	defer reg.Close()

	c, err := cluster.New(spec, cluster.WithRegistry(reg))
	if err != nil {
		return err
	}

	fmt.Printf("Building cluster %s...\n", c.ID())
	if err := c.Build(context.Background()); err != nil {
		c.Close()
		return fmt.Errorf("failed to build cluster: %v", err)
	}

	fmt.Println("✓ Cluster built")
	for _, addr := range c.MasterAddresses() {
		fmt.Printf("  master    %s\n", addr)
	}
	for _, addr := range c.WorkerAddresses() {
		fmt.Printf("  worker    %s\n", addr)
	}
	if addr, ok := c.MetadataAddress(); ok {
		fmt.Printf("  metadata  %s\n", addr)
	}
	fmt.Printf("  scratch   %s\n", c.ScratchDir())

	// Start status server in background
	errCh := make(chan error, 1)
	if statusAddr, _ := cmd.Flags().GetString("status-addr"); statusAddr != "" {
		server := api.NewStatusServer(c)
		go func() {
			if err := server.Start(statusAddr); err != nil {
				errCh <- fmt.Errorf("status server error: %v", err)
			}
		}()
		fmt.Printf("✓ Status server on http://%s/statusz\n", statusAddr)
	}

	fmt.Println()
	fmt.Println("Cluster is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal or status server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	if err := c.Close(); err != nil {
		return fmt.Errorf("failed to close cluster: %v", err)
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

// specFromInvocation builds the cluster spec from the optional spec file,
// then lets explicitly-set flags override individual fields.
func specFromInvocation(cmd *cobra.Command) (types.ClusterSpec, error) {
	var spec types.ClusterSpec
	flags := cmd.Flags()

	filename, _ := flags.GetString("file")
	if filename != "" {
		loaded, err := specFromFile(filename)
		if err != nil {
			return spec, err
		}
		spec = loaded
	}

	// With no spec file every flag applies; with one, only flags the user
	// actually set.
	set := func(name string) bool {
		return filename == "" || flags.Changed(name)
	}

	if set("masters") {
		spec.Masters, _ = flags.GetInt("masters")
	}
	if set("workers") {
		spec.Workers, _ = flags.GetInt("workers")
	}
	if set("metadata") {
		spec.EnableMetadata, _ = flags.GetBool("metadata")
	}
	if set("master-bin") {
		spec.MasterBinary, _ = flags.GetString("master-bin")
	}
	if set("worker-bin") {
		spec.WorkerBinary, _ = flags.GetString("worker-bin")
	}
	if set("bin-dir") {
		spec.BinDir, _ = flags.GetString("bin-dir")
	}
	if set("scratch-dir") {
		spec.ScratchDir, _ = flags.GetString("scratch-dir")
	}
	if set("keep-scratch") {
		spec.KeepScratchOnClose, _ = flags.GetBool("keep-scratch")
	}
	if set("start-timeout") {
		spec.StartTimeout, _ = flags.GetDuration("start-timeout")
	}
	if set("stop-timeout") {
		spec.StopTimeout, _ = flags.GetDuration("stop-timeout")
	}

	if flags.Changed("credential-cache") || flags.Changed("principal") ||
		flags.Changed("keytab") || flags.Changed("protection") {
		if spec.Security == nil {
			spec.Security = &types.SecurityConfig{}
		}
		if flags.Changed("credential-cache") {
			spec.Security.CredentialCachePath, _ = flags.GetString("credential-cache")
		}
		if flags.Changed("principal") {
			spec.Security.ServicePrincipal, _ = flags.GetString("principal")
		}
		if flags.Changed("keytab") {
			spec.Security.KeytabFile, _ = flags.GetString("keytab")
		}
		if flags.Changed("protection") {
			p, _ := flags.GetString("protection")
			spec.Security.Protection = types.ProtectionLevel(p)
		}
	}

	return spec, nil
}

func specFromFile(filename string) (types.ClusterSpec, error) {
	var spec types.ClusterSpec

	data, err := os.ReadFile(filename)
	if err != nil {
		return spec, fmt.Errorf("failed to read spec file: %v", err)
	}

	var file SpecFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return spec, fmt.Errorf("failed to parse spec file: %v", err)
	}

	spec = types.ClusterSpec{
		Masters:            file.Masters,
		Workers:            file.Workers,
		EnableMetadata:     file.Metadata,
		MasterBinary:       file.MasterBinary,
		WorkerBinary:       file.WorkerBinary,
		BinDir:             file.BinDir,
		ExtraMasterFlags:   file.ExtraMasterFlags,
		ExtraWorkerFlags:   file.ExtraWorkerFlags,
		MasterPorts:        file.MasterPorts,
		WorkerPorts:        file.WorkerPorts,
		ScratchDir:         file.ScratchDir,
		KeepScratchOnClose: file.KeepScratch,
		ExtraEnv:           file.ExtraEnv,
	}

	if file.StartTimeout != "" {
		if spec.StartTimeout, err = time.ParseDuration(file.StartTimeout); err != nil {
			return spec, fmt.Errorf("invalid startTimeout: %v", err)
		}
	}
	if file.StopTimeout != "" {
		if spec.StopTimeout, err = time.ParseDuration(file.StopTimeout); err != nil {
			return spec, fmt.Errorf("invalid stopTimeout: %v", err)
		}
	}

	if file.Security != nil {
		spec.Security = &types.SecurityConfig{
			CredentialCachePath: file.Security.CredentialCache,
			ServicePrincipal:    file.Security.Principal,
			KeytabFile:          file.Security.Keytab,
			Protection:          types.ProtectionLevel(file.Security.Protection),
		}
	}

	return spec, nil
}
