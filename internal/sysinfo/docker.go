package sysinfo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
)

// DockerInfo summarises the local container engine.
type DockerInfo struct {
	ServerVersion   string `json:"ServerVersion,omitempty"`
	OperatingSystem string `json:"OperatingSystem,omitempty"`
	Containers      int    `json:"Containers"`
	Running         int    `json:"Running"`
	Images          int    `json:"Images"`
	// Error is set instead of the fields above when the engine did not answer.
	Error string `json:"Error,omitempty"`
}

// EngineAPI is the part of the Docker client the probe uses.
type EngineAPI interface {
	Info(ctx context.Context) (system.Info, error)
	Close() error
}

// DockerProbe asks the Docker engine for a summary.
type DockerProbe struct {
	api    EngineAPI
	logger *slog.Logger
}

// NewDockerProbe connects using the standard DOCKER_HOST / DOCKER_* variables
// and negotiates the API version on first use. It does not contact the
// engine; an unreachable engine shows up in Probe results.
func NewDockerProbe(logger *slog.Logger) (*DockerProbe, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sysinfo: creating docker client: %w", err)
	}
	return NewDockerProbeWithAPI(cli, logger), nil
}

func NewDockerProbeWithAPI(api EngineAPI, logger *slog.Logger) *DockerProbe {
	return &DockerProbe{api: api, logger: logger}
}

// Probe returns engine information, or a DockerInfo carrying only Error.
func (p *DockerProbe) Probe(ctx context.Context) *DockerInfo {
	info, err := p.api.Info(ctx)
	if err != nil {
		p.logger.Warn("docker engine unavailable", slog.String("error", err.Error()))
		return &DockerInfo{Error: "docker engine unavailable"}
	}
	return &DockerInfo{
		ServerVersion:   info.ServerVersion,
		OperatingSystem: info.OperatingSystem,
		Containers:      info.Containers,
		Running:         info.ContainersRunning,
		Images:          info.Images,
	}
}

// Close releases the client's connections.
func (p *DockerProbe) Close() error {
	return p.api.Close()
}
