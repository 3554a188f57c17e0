package models

import (
	"time"

	"github.com/smazurov/nodewarden/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"Supervisor is running" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// ProcessInfo describes one running supervised process.
type ProcessInfo struct {
	ID        string    `json:"id" example:"player" doc:"Process identifier"`
	PID       int       `json:"pid" example:"1234" doc:"Operating system process ID"`
	Command   string    `json:"command" doc:"Command line the process was started with"`
	StartedAt time.Time `json:"started_at" doc:"Start timestamp"`
	LogFile   string    `json:"log_file,omitempty" doc:"Path of the output capture file"`
}

// StatusData is the device status snapshot.
type StatusData struct {
	Mode             string        `json:"mode" example:"idle" doc:"Current device mode"`
	CountdownSeconds int           `json:"countdown_seconds" example:"0" doc:"Seconds until config mode times out (0 in idle)"`
	Processes        []ProcessInfo `json:"processes" doc:"Currently running supervised processes"`
	Version          version.Info  `json:"version" doc:"Build information"`
}

type StatusResponse struct {
	Body StatusData
}

// LogEntry is one recorded log line from the in-memory flight recorder.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"INFO" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Originating module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// LogsData carries recent log entries in chronological order.
type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int        `json:"count" example:"120" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
