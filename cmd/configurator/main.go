package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/api"
	"github.com/openacoustics/audiomoth-configurator/internal/config"
	"github.com/openacoustics/audiomoth-configurator/internal/device"
	"github.com/openacoustics/audiomoth-configurator/internal/integration"
	"github.com/openacoustics/audiomoth-configurator/internal/server"
	"github.com/openacoustics/audiomoth-configurator/internal/storage"
	"github.com/openacoustics/audiomoth-configurator/internal/transfer"
	"github.com/openacoustics/audiomoth-configurator/pkg/crypto"
)

func main() {
	// Command line flags
	var configPath = flag.String("config", "config/configurator.yml", "Configuration file path")
	var validateOnly = flag.Bool("validate", false, "Validate the configuration file and exit")
	var showConfig = flag.Bool("show-config", false, "Print the configuration summary and exit")
	var simulate = flag.Bool("simulate", false, "Use a simulated recorder instead of USB HID")
	var hashPassword = flag.Bool("hash-password", false, "Read a password from stdin, print its operator.password_hash and exit")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *hashPassword {
		hash, err := readPasswordHash(os.Stdin)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}
	if *simulate {
		cfg.Device.Simulate = true
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if strings.EqualFold(cfg.Log.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	if *validateOnly {
		cfg.PrintConfigSummary()
		fmt.Println("Configuration is valid")
		return
	}

	// Open the recorder transport
	transport, closeTransport, err := openTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open recorder transport")
	}
	defer closeTransport()

	// Connect to database
	store, err := storage.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to connect to database")
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Connected to database")

	publisher := openPublishers(cfg)
	defer publisher.Close()

	// Transfer machinery
	exclusive := device.NewExclusive(transport)
	sessions := device.NewSessionTracker()
	machine := transfer.NewMachine(exclusive, sessions,
		transfer.WithRetryPolicy(device.NewRetryPolicy(&cfg.Retry)),
		transfer.WithScheduler(transfer.NewScheduler(&cfg.Transfer)),
		transfer.AllowUnsupported(cfg.Device.AllowUnsupported),
	)
	poller := transfer.NewPoller(exclusive, sessions, machine, cfg.Transfer.PollOffset)
	server.NewRecorder(store, publisher).Attach(machine, poller)

	apiServer, err := api.NewRESTServer(cfg, store, machine, poller)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create REST API server")
	}

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WaitGroup for services
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Device poller stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.ListenAndServe(cfg.API.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Cancel context
	cancel()

	// Shutdown API server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Configurator stopped")
}

// openTransport returns the USB HID transport, or the simulated recorder
func openTransport(cfg *config.Config) (device.Transport, func(), error) {
	if cfg.Device.Simulate {
		log.Warn().Msg("Using simulated recorder")
		return device.NewStubTransport("24F3190C5FD8E3A1"), func() {}, nil
	}

	hid, err := device.NewHIDTransport(&cfg.Device)
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("vendor_id", fmt.Sprintf("%04x", cfg.Device.VendorID)).
		Str("product_id", fmt.Sprintf("%04x", cfg.Device.ProductID)).
		Msg("USB HID transport ready")

	return hid, func() {
		if err := hid.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close HID device")
		}
	}, nil
}

// openPublishers connects the configured integrations. A broker that
// cannot be reached is logged and skipped.
func openPublishers(cfg *config.Config) integration.Publisher {
	var pubs integration.Multi

	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")
		nc, err := integration.ConnectNATS(&cfg.NATS, cfg.Server.Name)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			log.Info().Msg("Connected to NATS")
			pubs = append(pubs, integration.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
		}
	} else {
		log.Info().Msg("NATS not configured")
	}

	if cfg.MQTT.Broker != "" {
		log.Info().Str("broker", cfg.MQTT.Broker).Msg("Connecting to MQTT broker...")
		pub, err := integration.NewMQTTPublisher(&cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to MQTT broker, continuing without MQTT support")
		} else {
			pubs = append(pubs, pub)
		}
	} else {
		log.Info().Msg("MQTT not configured")
	}

	if len(pubs) == 0 {
		return integration.Nop{}
	}
	return pubs
}

// readPasswordHash hashes the first line of r.
func readPasswordHash(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return crypto.HashPassword(password)
}
