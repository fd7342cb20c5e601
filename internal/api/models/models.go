package models

import (
	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/logging"
	"github.com/smazurov/camgraph/internal/pipeline"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Pipeline models
type PipelineData struct {
	pipeline.Snapshot
	Totals map[string]float64 `json:"totals" doc:"Process-wide scheduler counters"`
}

type PipelineResponse struct {
	Body PipelineData
}

type FlushData struct {
	Session         string `json:"session" doc:"Pipeline session identifier"`
	CancelledUnits  int    `json:"cancelled_units" example:"3" doc:"Dependency units dropped"`
	CancelledFences int    `json:"cancelled_fences" example:"6" doc:"Fences forced to cancelled"`
	Requests        int    `json:"requests" example:"2" doc:"In-flight requests cancelled"`
	Commands        int    `json:"commands" example:"1" doc:"Backend commands cancelled"`
}

type FlushResponse struct {
	Body FlushData
}

type RenegotiateResponse struct {
	Body struct {
		Session string `json:"session" doc:"Pipeline session identifier"`
		Message string `json:"message" example:"formats unchanged" doc:"Operation result message"`
	}
}

// Request models
type SubmitRequestData struct {
	Count    int            `json:"count,omitempty" minimum:"1" maximum:"64" default:"1" example:"4" doc:"Number of requests to submit"`
	Frames   uint32         `json:"frames,omitempty" example:"1" doc:"Frames batched per request"`
	Controls map[string]any `json:"controls,omitempty" doc:"Per-request controls, e.g. fd.enable, fd.skip, af.mode"`
}

type SubmitRequest struct {
	Body SubmitRequestData
}

type SubmitData struct {
	Session  string   `json:"session" doc:"Pipeline session identifier"`
	Requests []uint64 `json:"requests" example:"[1,2,3,4]" doc:"Assigned request ids"`
}

type SubmitResponse struct {
	Body SubmitData
}

// Device models
type DeviceListData struct {
	Devices []device.Status `json:"devices" doc:"Registered hardware devices"`
	Count   int             `json:"count" example:"2" doc:"Number of devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

// Log models
type LogQuery struct {
	Module string `query:"module" example:"scheduler" doc:"Only entries from this module"`
	Limit  int    `query:"limit" minimum:"0" default:"200" doc:"Newest entries to return, 0 for all"`
}

type LogListData struct {
	Entries []logging.Entry `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int             `json:"count" doc:"Number of entries returned"`
}

type LogListResponse struct {
	Body LogListData
}
