package web

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/angora-org/angora/internal/build"
	"github.com/angora-org/angora/internal/stringutil"
)

var startTime = time.Now()

// handleHealth reports process and host status.
func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":  "ok",
		"app":     build.AppName,
		"version": build.Version,
		"started": stringutil.FormatTime(startTime),
		"uptime":  time.Since(startTime).Round(time.Second).String(),
	}

	if info, err := host.Info(); err == nil {
		payload["host"] = map[string]any{
			"hostname": info.Hostname,
			"os":       info.OS,
			"platform": info.Platform,
			"uptime":   info.Uptime,
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		payload["memory"] = map[string]any{
			"total":        vm.Total,
			"used_percent": vm.UsedPercent,
		}
	}
	if avg, err := load.Avg(); err == nil {
		payload["load"] = map[string]any{
			"load1":  avg.Load1,
			"load5":  avg.Load5,
			"load15": avg.Load15,
		}
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			payload["process"] = map[string]any{
				"pid": proc.Pid,
				"rss": memInfo.RSS,
			}
		}
	}

	writeJSON(w, http.StatusOK, payload)
}
