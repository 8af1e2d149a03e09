// OpenScale — single-binary auto-scaling control loop with operator API and agents.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kelvas/openscale/internal/agent"
	"github.com/kelvas/openscale/internal/config"
	"github.com/kelvas/openscale/internal/provision"
	"github.com/kelvas/openscale/internal/scaler"
	"github.com/kelvas/openscale/internal/server"
)

const asciiLogo = `
  ██████╗ ██████╗ ███████╗███╗   ██╗███████╗ ██████╗ █████╗ ██╗     ███████╗
 ██╔═══██╗██╔══██╗██╔════╝████╗  ██║██╔════╝██╔════╝██╔══██╗██║     ██╔════╝
 ██║   ██║██████╔╝█████╗  ██╔██╗ ██║███████╗██║     ███████║██║     █████╗
 ██║   ██║██╔═══╝ ██╔══╝  ██║╚██╗██║╚════██║██║     ██╔══██║██║     ██╔══╝
 ╚██████╔╝██║     ███████╗██║ ╚████║███████║╚██████╗██║  ██║███████╗███████╗
  ╚═════╝ ╚═╝     ╚══════╝╚═╝  ╚═══╝╚══════╝ ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo + "\n")
	fmt.Printf("  ► OpenScale %s  |  Mode: %s\n\n", version, mode)
}

func main() {
	root := &cobra.Command{
		Use:   "openscale",
		Short: "OpenScale — metric-driven auto-scaling control loop",
		Long: `OpenScale is a single-binary C/S auto-scaler: remote agents report host
metrics, the server averages them over a trailing window and applies
confidence-gated scale-up/scale-down decisions through a provisioner.`,
		SilenceUsage: true,
	}

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the OpenScale server (dual-port: 7600 control + 7601 data)",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			if err := server.InitDB(cfg); err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}

			// Inject security settings into server package globals.
			server.SetJWTSecret(cfg.JWTSecret)
			server.SetAgentToken(cfg.AgentToken)
			server.SetAdminCredentials(cfg.AdminUser, cfg.AdminPass)

			prov, err := buildProvisioner(cfg)
			if err != nil {
				return fmt.Errorf("building provisioner: %w", err)
			}
			core := scaler.New(cfg.ScalerConfig(), prov)
			server.SetScaler(core)

			col, err := buildCollector(cfg)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			corsMiddleware := func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
				c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if c.Request.Method == "OPTIONS" {
					c.AbortWithStatus(204)
					return
				}
				c.Next()
			}

			// ── Control-plane engine (7600) ────────────────────────────────────
			ctrlEngine := gin.New()
			ctrlEngine.Use(gin.Recovery(), corsMiddleware)
			server.RegisterControlRoutes(ctrlEngine)

			// ── Data-plane engine (7601) ───────────────────────────────────────
			dataEngine := gin.New()
			dataEngine.Use(gin.Recovery())
			server.RegisterDataRoutes(dataEngine)

			ctrlAddr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ControlPort)
			dataAddr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.DataPort)

			fmt.Printf("  ✓ Control plane (operator JWT API) → http://%s\n", ctrlAddr)
			fmt.Printf("  ✓ Data    plane (agent reports)    → http://%s\n", dataAddr)
			fmt.Printf("  ✓ Policy: %d-%d instances, up>%.0f%%, down<%.0f%%, cooldown %ds\n",
				cfg.MinInstances, cfg.MaxInstances,
				cfg.ScaleUpThreshold, cfg.ScaleDownThreshold, cfg.CooldownSeconds)
			fmt.Printf("  ✓ Collector: %s | Provisioner: %s\n\n", cfg.CollectorMode, cfg.Provisioner)

			// Run the control loop alongside both HTTP servers; shut down
			// gracefully on SIGINT.
			loopCtx, cancelLoop := context.WithCancel(context.Background())
			defer cancelLoop()
			go server.RunLoop(loopCtx,
				time.Duration(cfg.EvaluateIntervalSecs)*time.Second, col, cfg.CollectorMode)

			ctrlSrv := &http.Server{Addr: ctrlAddr, Handler: ctrlEngine}
			dataSrv := &http.Server{Addr: dataAddr, Handler: dataEngine}

			errCh := make(chan error, 2)
			go func() { errCh <- ctrlSrv.ListenAndServe() }()
			go func() { errCh <- dataSrv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt) // os.Interrupt = SIGINT; works on all platforms

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("\n  → Shutting down gracefully…")
				cancelLoop()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = ctrlSrv.Shutdown(ctx)
				_ = dataSrv.Shutdown(ctx)
				return nil
			}
		},
	}

	// ── agent subcommand ──────────────────────────────────────────────────────
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the OpenScale agent on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("AGENT")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// CLI flags override config values.
			if join, _ := cmd.Flags().GetString("join"); join != "" {
				if !containsPort(join) {
					join = fmt.Sprintf("%s:%d", join, cfg.DataPort)
				}
				cfg.AgentJoinAddr = join
			}
			if token, _ := cmd.Flags().GetString("token"); token != "" {
				cfg.AgentOutboundToken = token
			}
			if interval, _ := cmd.Flags().GetInt("interval"); interval > 0 {
				cfg.AgentInterval = interval
			}

			fmt.Printf("  ✓ Joining server: %s\n", cfg.AgentJoinAddr)
			fmt.Printf("  ✓ Report interval: %ds\n\n", cfg.AgentInterval)
			return agent.Run(cfg)
		},
	}
	agentCmd.Flags().String("join", "", "Data-plane address, e.g. 192.168.1.1 or 192.168.1.1:7601")
	agentCmd.Flags().String("token", "", "Pre-shared token for server authentication (overrides config)")
	agentCmd.Flags().Int("interval", 0, "Report interval in seconds (overrides config)")

	// ── simulate subcommand ───────────────────────────────────────────────────
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a closed-loop scaling demo against synthetic metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SIMULATE")
			cycles, _ := cmd.Flags().GetInt("cycles")
			interval, _ := cmd.Flags().GetDuration("interval")
			return runSimulation(cycles, interval)
		},
	}
	simulateCmd.Flags().Int("cycles", 20, "Number of monitoring cycles to run")
	simulateCmd.Flags().Duration("interval", 2*time.Second, "Delay between cycles")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print OpenScale version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("OpenScale %s\n", version)
		},
	}

	root.AddCommand(serverCmd, agentCmd, simulateCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildProvisioner constructs the configured control-plane seam.
func buildProvisioner(cfg *config.Config) (provision.Provisioner, error) {
	switch cfg.Provisioner {
	case "ssh":
		keyPEM := ""
		if cfg.SSHKeyPath != "" {
			data, err := os.ReadFile(expandHome(cfg.SSHKeyPath))
			if err == nil {
				keyPEM = string(data)
			}
		}
		return provision.NewSSH(cfg.SSHHost, cfg.SSHUser, cfg.SSHPassword, keyPEM,
			cfg.ScaleUpCommand, cfg.ScaleDownCommand)
	default:
		return provision.NewStatic(), nil
	}
}

// buildCollector returns the server-side collector, or nil in agent mode.
func buildCollector(cfg *config.Config) (scaler.Collector, error) {
	switch cfg.CollectorMode {
	case "sim":
		return scaler.NewSimCollector(), nil
	case "host":
		return scaler.NewHostCollector(cfg.ProbeURL), nil
	case "agent":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown collector_mode %q", cfg.CollectorMode)
	}
}

// runSimulation drives the full collect→decide→apply cycle in-process,
// printing per-cycle output. Cooldown and window are shortened so a short
// run can actually exhibit scaling.
func runSimulation(cycles int, interval time.Duration) error {
	cfg := scaler.Config{
		MinInstances:       2,
		MaxInstances:       8,
		ScaleUpThreshold:   70.0,
		ScaleDownThreshold: 30.0,
		CooldownPeriod:     60 * time.Second,
		MetricsWindow:      30 * time.Second,
		ScaleUpFactor:      1.5,
		ScaleDownFactor:    0.7,
	}
	core := scaler.New(cfg, provision.NewStatic())
	collector := scaler.NewSimCollector()
	ctx := context.Background()

	for i := 0; i < cycles; i++ {
		fmt.Printf("\n--- Monitoring Cycle %d ---\n", i+1)

		snap, err := collector.Collect()
		if err != nil {
			return err
		}
		core.AddMetrics(snap)
		fmt.Printf("Metrics: CPU=%.1f%%, Memory=%.1f%%, Response=%.1fms\n",
			snap.CPUUsage, snap.MemoryUsage, snap.ResponseTime)

		action, confidence := core.ShouldScale()
		if action != scaler.ActionNone {
			fmt.Printf("Scaling decision: %s (confidence: %.2f)\n", action, confidence)
			if err := core.ExecuteScaling(ctx, action, confidence); err != nil {
				fmt.Printf("Scaling skipped: %v\n", err)
			} else {
				fmt.Printf("Scaling successful! Current instances: %d\n", core.CurrentInstances())
			}
		} else {
			fmt.Println("No scaling needed")
		}

		status := core.Status()
		fmt.Printf("Status: %d instances, %d metrics in history\n",
			status.CurrentInstances, status.MetricsCount)

		if i < cycles-1 {
			time.Sleep(interval)
		}
	}

	fmt.Println("\nSimulation completed.")
	return nil
}

// expandHome replaces a leading ~ with the user home directory.
func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// containsPort checks whether addr already has a port suffix.
func containsPort(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return true
		}
		if addr[i] == '/' {
			break
		}
	}
	return false
}
