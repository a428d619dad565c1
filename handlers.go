package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kwv/cloudalign/align"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasClouds bool      `json:"hasClouds"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasClouds: app.HasClouds(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Latest solved poses for all sensors
	mux.HandleFunc("/api/poses", func(w http.ResponseWriter, r *http.Request) {
		results := app.GetResults()
		if len(results) == 0 {
			http.Error(w, "No alignments available", http.StatusServiceUnavailable)
			return
		}

		type poseEntry struct {
			SensorID    string           `json:"sensor_id"`
			Translation align.Vec3       `json:"translation"`
			Rotation    align.Quaternion `json:"rotation"`
			Yaw         float64          `json:"yaw"`
			Cost        float64          `json:"cost"`
			Pairs       int              `json:"pairs"`
			Rounds      int              `json:"rounds"`
			Converged   bool             `json:"converged"`
			Condition   float64          `json:"condition"`
		}

		entries := make([]poseEntry, 0, len(results))
		for id, res := range results {
			entries = append(entries, poseEntry{
				SensorID:    id,
				Translation: res.Pose.Translation(),
				Rotation:    align.QuaternionFromRotation(res.Pose.RotationMatrix()),
				Yaw:         res.Pose.Yaw(),
				Cost:        res.FinalCost,
				Pairs:       res.Pairs,
				Rounds:      res.Rounds,
				Converged:   res.Converged,
				Condition:   res.Condition,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			log.Printf("Error encoding poses: %v", err)
		}
	})

	// On-demand alignment from posted scan payloads
	mux.HandleFunc("/api/align", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Source json.RawMessage `json:"source"`
			Target json.RawMessage `json:"target"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		source, err := align.DecodeScan(req.Source)
		if err != nil {
			http.Error(w, "Invalid source scan: "+err.Error(), http.StatusBadRequest)
			return
		}
		target, err := align.DecodeScan(req.Target)
		if err != nil {
			http.Error(w, "Invalid target scan: "+err.Error(), http.StatusBadRequest)
			return
		}

		cfg := app.Config.Solver.AlignConfig()
		result, err := align.AlignClouds(source, target, nil, cfg)
		if err != nil {
			http.Error(w, "Alignment failed: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}

		resp := struct {
			Translation align.Vec3       `json:"translation"`
			Rotation    align.Quaternion `json:"rotation"`
			Yaw         float64          `json:"yaw"`
			Cost        float64          `json:"cost"`
			Pairs       int              `json:"pairs"`
			Rounds      int              `json:"rounds"`
			Converged   bool             `json:"converged"`
			Condition   float64          `json:"condition"`
		}{
			Translation: result.Pose.Translation(),
			Rotation:    align.QuaternionFromRotation(result.Pose.RotationMatrix()),
			Yaw:         result.Pose.Yaw(),
			Cost:        result.FinalCost,
			Pairs:       result.Pairs,
			Rounds:      result.Rounds,
			Converged:   result.Converged,
			Condition:   result.Condition,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("Error encoding alignment response: %v", err)
		}
	})

	// Overlay exports: /overlay/{sensorID}.geojson, .svg, .png
	mux.HandleFunc("/overlay/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/overlay/")

		var format string
		switch {
		case strings.HasSuffix(name, ".geojson"):
			format = "geojson"
			name = strings.TrimSuffix(name, ".geojson")
		case strings.HasSuffix(name, ".svg"):
			format = "svg"
			name = strings.TrimSuffix(name, ".svg")
		case strings.HasSuffix(name, ".png"):
			format = "png"
			name = strings.TrimSuffix(name, ".png")
		default:
			http.Error(w, "Unknown overlay format (use .geojson, .svg or .png)", http.StatusNotFound)
			return
		}

		source, target, pose, pairs, err := app.overlayFor(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		switch format {
		case "geojson":
			fc := align.OverlayFeatureCollection(source, target, pose, pairs)
			w.Header().Set("Content-Type", "application/geo+json")
			if err := json.NewEncoder(w).Encode(fc); err != nil {
				log.Printf("Error encoding overlay GeoJSON: %v", err)
			}
		case "svg":
			renderer := align.NewOverlayRenderer(source, target, pose)
			w.Header().Set("Content-Type", "image/svg+xml")
			if err := renderer.RenderSVG(w); err != nil {
				log.Printf("Error encoding overlay SVG: %v", err)
			}
		case "png":
			renderer := align.NewOverlayRenderer(source, target, pose)
			w.Header().Set("Content-Type", "image/png")
			if err := renderer.Quicklook(w, 512); err != nil {
				log.Printf("Error encoding overlay PNG: %v", err)
			}
		}
	})

	// Default route serves HTML page embedding the overlay of the first sensor
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		sensorID := ""
		for _, sc := range app.Config.Sensors {
			if sc.ID != app.Config.EffectiveReference() {
				sensorID = sc.ID
				break
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>cloudalign</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/overlay/` + sensorID + `.svg" alt="Alignment Overlay">
</body>
</html>`))
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}
