// Package sysinfo reports facts about the host the dashboard runs on.
package sysinfo

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Info is the body of GET /api/system. Key names are part of the JSON API.
type Info struct {
	Node     string      `json:"Node"`
	Platform string      `json:"Platform"`
	OS       string      `json:"OS"`
	Version  string      `json:"Version"`
	Arch     string      `json:"Arch"`
	CPU      string      `json:"CPU"`
	NumCPU   int         `json:"NumCPU"`
	Go       string      `json:"Go"`
	Docker   *DockerInfo `json:"Docker,omitempty"`
}

// uname mirrors the fields of uname(2) that Info uses.
type uname struct {
	Sysname  string
	Nodename string
	Release  string
	Version  string
	Machine  string
}

// Collector gathers Info. Host facts are read on every call; they are cheap
// and the hostname can change under a container runtime.
type Collector struct {
	docker *DockerProbe
	logger *slog.Logger

	uname    func() (uname, error)
	cpuModel func() string
}

// NewCollector returns a Collector. docker may be nil to leave out engine
// information.
func NewCollector(docker *DockerProbe, logger *slog.Logger) *Collector {
	return &Collector{
		docker:   docker,
		logger:   logger,
		uname:    readUname,
		cpuModel: readCPUModel,
	}
}

// Collect never fails: anything that cannot be read is left empty.
func (c *Collector) Collect(ctx context.Context) Info {
	info := Info{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		NumCPU:   runtime.NumCPU(),
		Go:       runtime.Version(),
	}

	u, err := c.uname()
	if err != nil {
		c.logger.Debug("uname unavailable", slog.String("error", err.Error()))
		info.Node, _ = os.Hostname()
		info.OS = runtime.GOOS
	} else {
		info.Node = u.Nodename
		info.OS = strings.Join(nonEmpty(u.Sysname, u.Release, u.Machine), "-")
		info.Version = u.Version
		if u.Machine != "" {
			info.Arch = u.Machine
		}
	}

	info.CPU = c.cpuModel()
	if info.CPU == "" {
		info.CPU = info.Arch
	}

	if c.docker != nil {
		dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		info.Docker = c.docker.Probe(dctx)
	}
	return info
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readCPUModel returns the first "model name" from /proc/cpuinfo, or "" where
// that file does not exist.
func readCPUModel() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	defer f.Close()
	return parseCPUModel(bufio.NewScanner(f))
}

func parseCPUModel(sc *bufio.Scanner) string {
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "model name", "Model", "cpu model":
			return strings.TrimSpace(value)
		}
	}
	return ""
}
