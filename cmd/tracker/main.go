package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/position.report/internal/api"
	"github.com/banshee-data/position.report/internal/config"
	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/fsutil"
	"github.com/banshee-data/position.report/internal/gnss"
	"github.com/banshee-data/position.report/internal/httputil"
	"github.com/banshee-data/position.report/internal/keepalive"
	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/monitoring"
	"github.com/banshee-data/position.report/internal/serialmux"
	"github.com/banshee-data/position.report/internal/timeutil"
	"github.com/banshee-data/position.report/internal/units"
	"github.com/banshee-data/position.report/internal/version"
)

var (
	configPath    = flag.String("config", config.DefaultConfigPath, "Path to the tracker config (.json, .yaml or .yml)")
	devMode       = flag.Bool("dev", false, "Run in dev mode (simulated NMEA receiver)")
	listen        = flag.String("listen", "", "Listen address (overrides http.listen)")
	port          = flag.String("port", "", "Serial port of the GNSS receiver (overrides serial.port, ignored in dev mode)")
	dbPath        = flag.String("db-path", "", "SQLite database path (overrides storage.db_path)")
	disableGNSS   = flag.Bool("disable-gnss", false, "Report location services as disabled")
	noStart       = flag.Bool("no-start", false, "Wait for POST /api/tracker/start instead of tracking at launch")
	persistConfig = flag.Bool("persist-config", false, "Write tracker config changes made over the API back to --config")
	displayUnits  = flag.String("units", units.Meters, "Default accuracy units for the API ("+units.GetValidUnitsString()+")")
	debugLog      = flag.Bool("debug", false, "Enable debug logging")
	simLat        = flag.Float64("sim-lat", 51.5007, "Simulated receiver latitude (dev mode)")
	simLon        = flag.Float64("sim-lon", -0.1246, "Simulated receiver longitude (dev mode)")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// loadConfig reads the config file and applies command line overrides.
func loadConfig(path string) (*config.DaemonConfig, error) {
	cfg, err := config.LoadDaemonConfig(path)
	if err != nil {
		return nil, err
	}
	if *listen != "" {
		cfg.HTTP.Listen = listen
	}
	if *port != "" {
		cfg.Serial.Port = port
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	return cfg, cfg.Validate()
}

// newSensor builds the receiver and its authorization source. In dev mode
// the receiver reads from the simulator instead of a serial port.
func newSensor(cfg *config.DaemonConfig) (*gnss.Receiver, location.AuthorizationQuery) {
	rcfg := gnss.Config{
		Path:         cfg.GetSerialPort(),
		Options:      cfg.GetPortOptions(),
		UERE:         cfg.GetUERE(),
		InitCommands: cfg.Serial.InitCommands,
	}
	if *devMode {
		sim := gnss.NewSimulator(timeutil.RealClock{}, *simLat, *simLon, uint64(time.Now().UnixNano()))
		rcfg.Path = "simulator"
		rcfg.Open, _ = serialmux.MockOpener(sim.Next, time.Second)
		return gnss.NewReceiver(rcfg), gnss.AlwaysAuthorized{}
	}
	enabled := cfg.GetSerialEnabled() && !*disableGNSS
	if !enabled {
		rcfg.Open = func(string, serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
			return serialmux.NewDisabledSerialMux(), nil
		}
	}
	return gnss.NewReceiver(rcfg), gnss.NewDeviceAuthorization(fsutil.OSFileSystem{}, rcfg.Path, enabled)
}

// persistTrackerConfig rewrites the tracker section of the config file,
// leaving command line overrides out of it.
func persistTrackerConfig(path string, tc location.TrackerConfig) error {
	onDisk, err := config.LoadDaemonConfig(path)
	if err != nil {
		return err
	}
	onDisk.SetTrackerConfig(tc)
	return config.SaveDaemonConfig(path, onDisk)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("tracker %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	monitoring.SetDebug(*debugLog)
	log.Printf("tracker %s (%s) starting", version.Version, version.GitSHA)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}

	if flag.NArg() > 0 {
		if flag.Arg(0) != "migrate" {
			log.Fatalf("unknown command %q", flag.Arg(0))
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	recorder := db.NewRecorder(store, 0)

	receiver, auth := newSensor(cfg)
	tokens := keepalive.NewManager(timeutil.RealClock{}, cfg.GetTokenLifetime())
	tokens.SetLogger(monitoring.Prefixed("[keepalive] "))

	tracker := location.NewTracker(receiver, tokens, auth,
		location.WithLogger(monitoring.Prefixed("[tracker] ")),
		location.WithRestartPolicy(cfg.RestartPolicy()),
		location.WithEventSink(recorder.RecordEvent),
	)
	if err := tracker.Configure(cfg.TrackerConfig()); err != nil {
		log.Fatalf("invalid tracker config: %v", err)
	}
	tracker.AddSink(recorder.RecordSample)
	tracker.OnUpdate(func(s location.Sample) {
		monitoring.Debugf("location %.6f,%.6f ±%.1fm at %s", s.Latitude, s.Longitude, s.HorizontalAccuracy, s.Timestamp.Format(time.RFC3339))
	})

	// Recorder and pruning outlive the signal context so the final stop
	// event is written before the database closes.
	storeCtx, stopStore := context.WithCancel(context.Background())
	var storeWG sync.WaitGroup
	storeWG.Add(2)
	go func() {
		defer storeWG.Done()
		if err := recorder.Run(storeCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("recorder stopped: %v", err)
		}
	}()
	go func() {
		defer storeWG.Done()
		db.NewRetentionWorker(store, cfg.GetRetention()).Run(storeCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*noStart {
		if err := tracker.Start(); err != nil {
			log.Printf("tracking not started: %v", err)
		}
	}

	listenAddr, devicePath, tokenLifetime := cfg.GetListen(), cfg.GetSerialPort(), cfg.GetTokenLifetime()
	var wg sync.WaitGroup

	// SIGUSR1 marks the process as backgrounded; SIGHUP reloads the config
	wg.Add(1)
	go func() {
		defer wg.Done()
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGHUP)
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				switch sig {
				case syscall.SIGUSR1:
					log.Print("entering background")
					tracker.EnterBackground()
				case syscall.SIGHUP:
					next, err := loadConfig(*configPath)
					if err != nil {
						log.Printf("config reload failed, keeping current config: %v", err)
						continue
					}
					if err := tracker.Configure(next.TrackerConfig()); err != nil {
						log.Printf("config reload rejected: %v", err)
						continue
					}
					log.Printf("config reloaded from %s: %+v", *configPath, next.TrackerConfig())
				}
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(tracker, store, *displayUnits)
		apiServer.DevicePath = devicePath
		apiServer.MaxSleepInterval = tokenLifetime
		if *persistConfig {
			var persistMu sync.Mutex
			apiServer.ConfigChanged = func(tc location.TrackerConfig) {
				persistMu.Lock()
				defer persistMu.Unlock()
				if err := persistTrackerConfig(*configPath, tc); err != nil {
					log.Printf("failed to persist tracker config: %v", err)
				}
			}
		}

		mux := apiServer.ServeMux()
		apiServer.AttachAdminRoutes(mux)
		receiver.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)
		tsweb.Debugger(mux).HandleFunc("tracker", "Tracker, keepalive and recorder state", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteJSONOK(w, map[string]interface{}{
				"tracker":   tracker.Status(),
				"keepalive": tokens.Stats(),
				"recorder":  recorder.Stats(),
			})
		})

		server := &http.Server{
			Addr:    listenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	tracker.Stop()
	receiver.Close()
	tokens.Close()

	stopStore()
	storeWG.Wait()
	log.Printf("Graceful shutdown complete")
}
