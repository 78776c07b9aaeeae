package platform

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ProbeFunc reports what compute hardware the host offers.
type ProbeFunc func() Capabilities

const (
	nvidiaProcDir      = "/proc/driver/nvidia/gpus"
	nvidiaProbeTimeout = 5 * time.Second
)

type hostProbe struct {
	runtime Runtime
	cpus    int
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
	readDir func(name string) ([]os.DirEntry, error)
}

// ProbeHost inspects the current machine.
func ProbeHost() Capabilities {
	return hostProbe{
		runtime: CurrentRuntime(),
		cpus:    runtime.NumCPU(),
		run:     runCommand,
		readDir: os.ReadDir,
	}.probe()
}

func (p hostProbe) probe() Capabilities {
	caps := Capabilities{
		OS:           p.runtime.OS,
		Arch:         p.runtime.Arch,
		MPSAvailable: p.runtime.AppleSilicon(),
		CPUCount:     p.cpus,
		CUDADevices:  []string{},
	}

	if p.runtime.OS == "darwin" {
		return caps
	}

	names := p.nvidiaSMI()
	if len(names) == 0 {
		names = p.nvidiaProc()
	}

	if names != nil {
		caps.CUDADevices = names
	}
	caps.CUDADeviceCount = len(names)
	caps.CUDAAvailable = len(names) > 0
	return caps
}

func (p hostProbe) nvidiaSMI() []string {
	if p.run == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), nvidiaProbeTimeout)
	defer cancel()

	out, err := p.run(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		return nil
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (p hostProbe) nvidiaProc() []string {
	if p.readDir == nil {
		return nil
	}

	entries, err := p.readDir(nvidiaProcDir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, "nvidia "+entry.Name())
	}
	sort.Strings(names)
	return names
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, name, args...).Output()
}
