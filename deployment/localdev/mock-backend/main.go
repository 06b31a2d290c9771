package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type endpoint struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

type monitor struct {
	ID      int            `json:"id"`
	Name    string         `json:"name"`
	Metrics map[string]any `json:"metrics"`
	Status  any            `json:"status"`
	Active  bool           `json:"active"`
}

type alertRecord struct {
	ID          int    `json:"id"`
	Endpoint    string `json:"endpoint"`
	EndpointID  int    `json:"id_endpoint"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`
}

type metricSample struct {
	EndpointID   int               `json:"endpoint_id"`
	EndpointName string            `json:"endpoint_name"`
	Metrics      map[string]string `json:"metrics"`
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/endpoints", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"endpoints": []endpoint{
				{ID: 1, Name: "web-server-01", Status: "online", Data: map[string]any{
					"cpu_usage": 85.0, "memory_usage": 62.5, "response_time": 340.0,
				}},
				{ID: 2, Name: "db-server-01", Status: "online", Data: map[string]any{
					"cpu_usage": 45.0, "memory_usage": 91.0, "response_time": 120.0,
				}},
				{ID: 3, Name: "edge-router-01", Status: "offline", Data: map[string]any{}},
			},
		})
	})

	mux.HandleFunc("/api/monitors", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"monitors": []monitor{
				{ID: 10, Name: "snmp-core-switch", Active: true, Status: 1, Metrics: map[string]any{
					"hrProcessorLoad": 72.0, "memTotalReal": 8192.0, "memAvailReal": 1024.0,
				}},
				{ID: 11, Name: "ping-branch-gw", Active: true, Status: 1, Metrics: map[string]any{
					"pingResponseTime": 2400.0,
				}},
			},
		})
	})

	mux.HandleFunc("/api/alerts", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"alerts": []alertRecord{
				{ID: 100, Endpoint: "web-server-01", EndpointID: 1, Title: "High CPU", Description: "CPU above 80% for 10 minutes", Severity: "warning", Status: "active"},
				{ID: 101, Endpoint: "web-server-01", EndpointID: 1, Title: "High CPU", Description: "CPU above 80% for 10 minutes", Severity: "warning", Status: "active"},
				{ID: 102, Endpoint: "web-server-01", EndpointID: 1, Title: "Slow responses", Description: "Response time degraded", Severity: "warning", Status: "active"},
				{ID: 103, Endpoint: "edge-router-01", EndpointID: 3, Title: "Unreachable", Description: "No ping response", Severity: "critical", Status: "active"},
			},
		})
	})

	mux.HandleFunc("/api/metrics/recent", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"metrics": []metricSample{
				{EndpointID: 1, EndpointName: "web-server-01", Status: "online", Timestamp: time.Now().Add(-5 * time.Minute), Metrics: map[string]string{
					"cpu_usage": "85%", "memory_usage": "62.5%",
				}},
				{EndpointID: 2, EndpointName: "db-server-01", Status: "online", Timestamp: time.Now().Add(-5 * time.Minute), Metrics: map[string]string{
					"cpu_usage": "45%", "memory_usage": "91%",
				}},
			},
		})
	})

	logger := log.New(log.Writer(), "backend-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforceGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
