// Command trainer emulates a BLE indoor cycling trainer, advertising
// FTMS, CPS, and RSC and streaming simulated telemetry to any connected
// consumer.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelcycling/trainer-core/internal/config"
	"github.com/kestrelcycling/trainer-core/internal/peripheral"
	"github.com/kestrelcycling/trainer-core/internal/publisher"
	"github.com/kestrelcycling/trainer-core/internal/randutil"
	"github.com/kestrelcycling/trainer-core/internal/simulation"
	"github.com/kestrelcycling/trainer-core/internal/telemetrylog"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "trainer",
		Short: "BLE cycling trainer emulator",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./trainer.yaml", "path to config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newCalibrateCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the trainer version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newCalibrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Run a simulated spin-down calibration and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(*configPath)
			engine := buildEngine(cfg)
			st := engine.UpdateWithDT(simulation.SimulationInput{TargetPowerW: 0, IsResting: true}, 2.5)
			fmt.Printf("spin-down complete: residual power=%dW cadence=%drpm\n", st.PowerW, st.CadenceRPM)
			return nil
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	var listenOverride string
	var loopback bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start advertising and streaming telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(*configPath)
			if listenOverride != "" {
				cfg.Peripheral.ListenAddr = listenOverride
			}
			return runPeripheral(cmd.Context(), cfg, loopback)
		},
	}
	cmd.Flags().StringVar(&listenOverride, "listen", "", "override the stats dashboard listen address")
	cmd.Flags().BoolVar(&loopback, "loopback", true, "use the in-process loopback transport (no BLE host stack wired yet)")
	return cmd
}

func buildEngine(cfg *config.Config) *simulation.Engine {
	physics := simulation.DefaultPhysicsParams()
	physics.MassKg = cfg.Rider.MassKg
	physics.CdA = cfg.Rider.CdA
	physics.Crr = cfg.Rider.Crr

	rng := randutil.NewLCG(uint32(time.Now().UnixNano()))
	return simulation.NewEngine(physics, cfg.Gearset(), simulation.RideWheelCircumferenceM, cfg.Rider.FTPWatts, rng)
}

func runPeripheral(ctx context.Context, cfg *config.Config, loopback bool) error {
	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("[main] trainer starting")

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := buildEngine(cfg)

	var transport peripheral.Transport
	if loopback {
		transport = peripheral.NewLoopback()
	} else {
		// A real BLE host stack (e.g. tinygo.org/x/bluetooth) would be
		// wired in here; see SPEC_FULL.md §0 for why it is not imported
		// in this revision.
		return fmt.Errorf("non-loopback transport is not wired in this build")
	}

	coord := peripheral.New(transport, engine, peripheral.Config{
		LocalName:      cfg.Peripheral.LocalName,
		EnableFTMS:     cfg.Services.FTMS,
		EnableCPS:      cfg.Services.CPS,
		EnableRSC:      cfg.Services.RSC,
		IncludePower:   cfg.Services.Power,
		IncludeCadence: cfg.Services.Cadence,
		Strict:         cfg.Peripheral.Strict,
		Randomness:     cfg.Rider.DefaultRandom,
	})

	pub := publisher.New()
	recorder := telemetrylog.New(telemetrylog.Config{
		Enabled: cfg.Logging.Enabled, Path: cfg.Logging.Path, IntervalMs: cfg.Logging.IntervalMs,
	})
	defer recorder.Close()

	coord.OnSnapshot = func(snap peripheral.Snapshot) {
		recorder.Record(snap.GradePct, snap.Sim)
		pub.Publish(publisher.LiveStats{
			SpeedKmh:         snap.Sim.SpeedMps * 3.6,
			PowerW:           snap.Sim.PowerW,
			CadenceRPM:       snap.Sim.CadenceRPM,
			Gear:             fmt.Sprintf("%dx%d", snap.Sim.Gear.FrontTeeth, snap.Sim.Gear.RearTeeth),
			TargetCadenceRPM: snap.Sim.TargetCadenceRPM,
			Fatigue:          snap.Sim.Fatigue,
			Noise:            snap.Sim.NoiseRPM,
			GradePct:         snap.GradePct,
			State:            snap.State,
			IsAdvertising:    snap.IsAdvertising,
			SubscriberCount:  snap.SubscriberCount,
			LastError:        snap.LastError,
			StampMs:          time.Now().UnixMilli(),
		})
	}

	go connectTransportWithRetry(ctx, "transport", func() error {
		coord.OnTransportReady()
		return nil
	}, 5)

	coord.StartBroadcast(cfg.Peripheral.LocalName)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", pub.ServeHTTP)
	httpSrv := &http.Server{Addr: cfg.Peripheral.ListenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		coord.StopBroadcast()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
	}()

	log.Printf("[main] stats dashboard listening on %s", cfg.Peripheral.ListenAddr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// connectTransportWithRetry attempts connect with exponential backoff,
// starting at 1s and doubling up to 30s. A real BLE transport's host
// stack init can fail transiently (adapter not yet powered); the
// loopback transport always succeeds on the first attempt.
func connectTransportWithRetry(ctx context.Context, name string, connect func() error, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 30 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := connect(); err != nil {
			attempt++
			log.Printf("[%s] connect attempt %d failed: %v (retry in %v)", name, attempt, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}
		log.Printf("[%s] ready (attempt %d)", name, attempt+1)
		return
	}
}
