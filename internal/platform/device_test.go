package platform

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Device
	}{
		{input: "", want: ""},
		{input: "  ", want: ""},
		{input: "cpu", want: DeviceCPU},
		{input: "CPU", want: DeviceCPU},
		{input: "cuda", want: DeviceCUDA},
		{input: "gpu", want: DeviceCUDA},
		{input: "cuda:0", want: DeviceCUDA},
		{input: "cuda:2", want: Device("cuda:2")},
		{input: "mps", want: DeviceMPS},
		{input: "Metal", want: DeviceMPS},
	}

	for _, tt := range tests {
		got, err := ParseDevice(tt.input)
		require.NoErrorf(t, err, "input %q", tt.input)
		require.Equalf(t, tt.want, got, "input %q", tt.input)
	}
}

func TestParseDeviceRejectsUnknown(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"tpu", "cuda:x", "cuda:-1", "vulkan"} {
		_, err := ParseDevice(input)
		require.Errorf(t, err, "input %q", input)
		require.ErrorIs(t, err, ErrUnknownDevice)
	}
}

func TestDeviceCUDAIndex(t *testing.T) {
	t.Parallel()

	index, ok := DeviceCUDA.CUDAIndex()
	require.True(t, ok)
	require.Equal(t, 0, index)

	index, ok = Device("cuda:3").CUDAIndex()
	require.True(t, ok)
	require.Equal(t, 3, index)

	_, ok = DeviceCPU.CUDAIndex()
	require.False(t, ok)
}

func TestOptimalDevicePreference(t *testing.T) {
	t.Parallel()

	require.Equal(t, DeviceCUDA, OptimalDevice(Capabilities{CUDAAvailable: true, CUDADeviceCount: 1, MPSAvailable: true}))
	require.Equal(t, DeviceMPS, OptimalDevice(Capabilities{MPSAvailable: true}))
	require.Equal(t, DeviceCPU, OptimalDevice(Capabilities{CUDAAvailable: true, CUDADeviceCount: 0}))
	require.Equal(t, DeviceCPU, OptimalDevice(Capabilities{}))
}

func TestSelectorProbesOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	selector := NewSelector(func() Capabilities {
		calls.Add(1)
		return Capabilities{MPSAvailable: true, CPUCount: 8}
	}, nil)

	results := make([]Device, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = selector.OptimalDevice()
		}()
	}
	wg.Wait()

	for _, device := range results {
		require.Equal(t, DeviceMPS, device)
	}

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, DeviceMPS, selector.Resolve(""))
	require.Equal(t, DeviceCPU, selector.Resolve(DeviceCPU))
}

func TestSelectorCapabilitiesReturnsCopy(t *testing.T) {
	t.Parallel()

	selector := NewStaticSelector(Capabilities{CUDAAvailable: true, CUDADeviceCount: 1, CUDADevices: []string{"A100"}})
	caps := selector.Capabilities()
	caps.CUDADevices[0] = "changed"

	require.Equal(t, []string{"A100"}, selector.Capabilities().CUDADevices)
	require.Equal(t, 1, selector.Capabilities().CPUCount)
}

func TestSelectorSupports(t *testing.T) {
	t.Parallel()

	gpuHost := NewStaticSelector(Capabilities{CUDAAvailable: true, CUDADeviceCount: 2, CPUCount: 4})
	require.NoError(t, gpuHost.Supports(DeviceCUDA))
	require.NoError(t, gpuHost.Supports(Device("cuda:1")))
	require.Error(t, gpuHost.Supports(Device("cuda:2")))
	require.Error(t, gpuHost.Supports(DeviceMPS))
	require.NoError(t, gpuHost.Supports(DeviceCPU))

	cpuHost := NewStaticSelector(Capabilities{CPUCount: 2})
	require.Error(t, cpuHost.Supports(DeviceCUDA))
	require.ErrorIs(t, cpuHost.Supports(Device("tpu")), ErrUnknownDevice)
}

type fakeDirEntry struct{ name string }

func (f fakeDirEntry) Name() string               { return f.name }
func (f fakeDirEntry) IsDir() bool                { return true }
func (f fakeDirEntry) Type() fs.FileMode          { return fs.ModeDir }
func (f fakeDirEntry) Info() (fs.FileInfo, error) { return nil, errors.New("not implemented") }

func TestHostProbeUsesNvidiaSMI(t *testing.T) {
	t.Parallel()

	probe := hostProbe{
		runtime: Runtime{OS: "linux", Arch: "amd64"},
		cpus:    16,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			require.Equal(t, "nvidia-smi", name)
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			require.WithinDuration(t, time.Now().Add(nvidiaProbeTimeout), deadline, time.Second)
			return []byte("NVIDIA A100\nNVIDIA L4\n\n"), nil
		},
	}

	caps := probe.probe()
	require.True(t, caps.CUDAAvailable)
	require.Equal(t, 2, caps.CUDADeviceCount)
	require.Equal(t, []string{"NVIDIA A100", "NVIDIA L4"}, caps.CUDADevices)
	require.False(t, caps.MPSAvailable)
	require.Equal(t, 16, caps.CPUCount)
	require.Equal(t, DeviceCUDA, OptimalDevice(caps))
}

func TestHostProbeFallsBackToProcfs(t *testing.T) {
	t.Parallel()

	probe := hostProbe{
		runtime: Runtime{OS: "linux", Arch: "amd64"},
		cpus:    4,
		run: func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("nvidia-smi not found")
		},
		readDir: func(name string) ([]os.DirEntry, error) {
			require.Equal(t, nvidiaProcDir, name)
			return []os.DirEntry{fakeDirEntry{name: "0000:01:00.0"}}, nil
		},
	}

	caps := probe.probe()
	require.True(t, caps.CUDAAvailable)
	require.Equal(t, 1, caps.CUDADeviceCount)
}

func TestHostProbeAppleSilicon(t *testing.T) {
	t.Parallel()

	probe := hostProbe{
		runtime: Runtime{OS: "darwin", Arch: "arm64"},
		cpus:    10,
		run: func(context.Context, string, ...string) ([]byte, error) {
			t.Fatal("nvidia-smi must not run on darwin")
			return nil, nil
		},
	}

	caps := probe.probe()
	require.True(t, caps.MPSAvailable)
	require.False(t, caps.CUDAAvailable)
	require.Empty(t, caps.CUDADevices)
	require.Equal(t, DeviceMPS, OptimalDevice(caps))
}

func TestHostProbeNoAccelerators(t *testing.T) {
	t.Parallel()

	probe := hostProbe{
		runtime: Runtime{OS: "linux", Arch: "arm64"},
		cpus:    2,
		run: func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("missing")
		},
		readDir: func(string) ([]os.DirEntry, error) {
			return nil, os.ErrNotExist
		},
	}

	caps := probe.probe()
	require.False(t, caps.CUDAAvailable)
	require.False(t, caps.MPSAvailable)
	require.NotNil(t, caps.CUDADevices)
	require.Equal(t, DeviceCPU, OptimalDevice(caps))
}
