package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kwv/cloudalign/align"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile  = flag.String("config", "config.yaml", "Path to configuration file")
	mqttMode    = flag.Bool("mqtt", false, "Run MQTT service mode for live scan alignment")
	httpMode    = flag.Bool("http", false, "Enable HTTP server for poses and overlays")
	httpPort    = flag.Int("http-port", 8080, "HTTP server port (default 8080)")
	verbose     = flag.Bool("verbose", false, "Log solver iterations")
	alignSource = flag.String("align-source", "", "Offline mode: source scan JSON file")
	alignTarget = flag.String("align-target", "", "Offline mode: target scan JSON file")
	overlayOut  = flag.String("overlay", "", "Offline mode: write overlay SVG to this path")
)

func main() {
	flag.Parse()
	fmt.Printf("cloudalign version: %s\n", Version)

	if *alignSource != "" || *alignTarget != "" {
		runOfflineAlign()
		return
	}

	if *mqttMode || *httpMode {
		runService()
		return
	}

	fmt.Println("cloudalign service starting...")
	fmt.Println("Use --mqtt to run MQTT service mode")
	fmt.Println("Use --http to run HTTP server mode")
	fmt.Println("Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Println("Use --align-source/--align-target for one-shot file alignment")
	fmt.Println("\nConfiguration:")
	fmt.Println("  config.yaml - MQTT broker, sensor topics and solver settings")
}

// runOfflineAlign registers one scan file onto another and prints the result
func runOfflineAlign() {
	if *alignSource == "" || *alignTarget == "" {
		log.Fatal("Both --align-source and --align-target are required")
	}

	source := loadScanFile(*alignSource)
	target := loadScanFile(*alignTarget)

	cfg := align.DefaultAlignConfig()
	cfg.Verbose = *verbose
	if _, err := os.Stat(*configFile); err == nil {
		config, err := align.LoadConfig(*configFile)
		if err != nil {
			log.Printf("Warning: Failed to load config file %s: %v", *configFile, err)
		} else {
			cfg = config.Solver.AlignConfig()
			cfg.Verbose = *verbose
		}
	}

	result, err := align.AlignClouds(source, target, nil, cfg)
	if err != nil {
		log.Fatalf("Alignment failed: %v", err)
	}

	t := result.Pose.Translation()
	q := align.QuaternionFromRotation(result.Pose.RotationMatrix())
	fmt.Printf("Translation: (%.4f, %.4f, %.4f)\n", t.X, t.Y, t.Z)
	fmt.Printf("Rotation (quat wxyz): (%.4f, %.4f, %.4f, %.4f)\n", q.W, q.X, q.Y, q.Z)
	fmt.Printf("Yaw: %.2f rad\n", result.Pose.Yaw())
	fmt.Printf("Cost: %.6g over %d pairs in %d rounds (converged=%v, condition=%.3g)\n",
		result.FinalCost, result.Pairs, result.Rounds, result.Converged, result.Condition)

	if *overlayOut != "" {
		out, err := os.Create(*overlayOut)
		if err != nil {
			log.Fatalf("Error creating overlay file %s: %v", *overlayOut, err)
		}
		defer func() {
			if err := out.Close(); err != nil {
				log.Printf("Warning: error closing %s: %v", *overlayOut, err)
			}
		}()

		renderer := align.NewOverlayRenderer(source, target, result.Pose)
		if strings.HasSuffix(*overlayOut, ".png") {
			err = renderer.RenderPNG(out)
		} else {
			err = renderer.RenderSVG(out)
		}
		if err != nil {
			log.Fatalf("Error rendering overlay: %v", err)
		}
		fmt.Printf("Created overlay: %s\n", *overlayOut)
	}
}

func loadScanFile(path string) *align.Cloud {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading scan file %s: %v", path, err)
	}
	cloud, err := align.DecodeScan(data)
	if err != nil {
		log.Fatalf("Error decoding scan file %s: %v", path, err)
	}
	return cloud
}

// runService starts the combined MQTT and/or HTTP service
func runService() {
	fmt.Println("Starting cloudalign service...")

	config, err := align.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v (looked at %s)", err, *configFile)
	}
	log.Printf("Loaded config from %s", *configFile)
	log.Printf("Reference sensor: %s", config.EffectiveReference())

	app := NewApp()
	app.Config = config
	app.ApplyOptions(AppOptions{
		ConfigFile: *configFile,
		HTTPPort:   *httpPort,
		MqttMode:   *mqttMode,
		HTTPMode:   *httpMode,
		Verbose:    *verbose,
	})

	if *mqttMode {
		mqttClient, err := align.InitMQTT(config, app.HandleScan)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		app.MQTTClient = mqttClient
		app.Publisher = align.NewPublisher(mqttClient.Client(), config.PublishPrefix)
		fmt.Println("MQTT pose publisher initialized")
	}

	if *httpMode {
		httpServer := newHTTPServer(app)
		go func() {
			addr := fmt.Sprintf(":%d", *httpPort)
			fmt.Printf("HTTP server starting on %s\n", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if *mqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, sc := range config.Sensors {
			fmt.Printf("    - %s (%s)\n", sc.Topic, sc.ID)
		}
		prefix := config.PublishPrefix
		if prefix == "" {
			prefix = "cloudalign"
		}
		fmt.Printf("  Publishing to: %s/pose/{sensorID}\n", prefix)
		fmt.Printf("  Combined poses: %s/poses\n", prefix)
	}

	if *httpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", *httpPort)
		fmt.Println("  GET  /health                     - Health check")
		fmt.Println("  GET  /api/poses                  - Latest solved poses")
		fmt.Println("  POST /api/align                  - One-shot alignment of posted scans")
		fmt.Println("  GET  /overlay/{sensor}.geojson   - Alignment overlay as GeoJSON")
		fmt.Println("  GET  /overlay/{sensor}.svg       - Alignment overlay as SVG")
		fmt.Println("  GET  /overlay/{sensor}.png       - Alignment overlay quicklook PNG")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if app.MQTTClient != nil {
		app.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
