package platform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Device names a compute target for model construction and inference.
type Device string

const (
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
	DeviceCPU  Device = "cpu"
)

var ErrUnknownDevice = errors.New("unknown device")

// ParseDevice normalizes a user-supplied device name. A blank input yields
// the empty Device, meaning "let the selector decide".
func ParseDevice(input string) (Device, error) {
	value := strings.ToLower(strings.TrimSpace(input))
	switch value {
	case "":
		return "", nil
	case "cuda", "gpu", "cuda:0", "gpu:0":
		return DeviceCUDA, nil
	case "mps", "metal":
		return DeviceMPS, nil
	case "cpu":
		return DeviceCPU, nil
	}

	for _, prefix := range []string{"cuda:", "gpu:"} {
		if !strings.HasPrefix(value, prefix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(value, prefix))
		if err != nil || index < 0 {
			return "", fmt.Errorf("%w %q: accelerator index must be a non-negative integer", ErrUnknownDevice, input)
		}
		return CUDADevice(index), nil
	}

	return "", fmt.Errorf("%w %q (expected cpu, cuda, cuda:N or mps)", ErrUnknownDevice, input)
}

// CUDADevice returns the device name for the accelerator at index.
func CUDADevice(index int) Device {
	if index <= 0 {
		return DeviceCUDA
	}
	return Device(fmt.Sprintf("cuda:%d", index))
}

// CUDAIndex reports the accelerator ordinal for cuda devices.
func (d Device) CUDAIndex() (int, bool) {
	if d == DeviceCUDA {
		return 0, true
	}
	rest, ok := strings.CutPrefix(string(d), "cuda:")
	if !ok {
		return 0, false
	}
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func (d Device) String() string {
	return string(d)
}

type Capabilities struct {
	OS              string   `json:"os"`
	Arch            string   `json:"arch"`
	CUDAAvailable   bool     `json:"cuda_available"`
	CUDADeviceCount int      `json:"cuda_device_count"`
	CUDADevices     []string `json:"cuda_devices"`
	MPSAvailable    bool     `json:"mps_available"`
	CPUCount        int      `json:"cpu_count"`
}

// OptimalDevice prefers a discrete accelerator, then the integrated one, then the CPU.
func OptimalDevice(caps Capabilities) Device {
	if caps.CUDAAvailable && caps.CUDADeviceCount > 0 {
		return DeviceCUDA
	}
	if caps.MPSAvailable {
		return DeviceMPS
	}
	return DeviceCPU
}

// Selector probes the host once and answers device questions from that snapshot.
type Selector struct {
	probe  ProbeFunc
	logger *zap.Logger

	once    sync.Once
	caps    Capabilities
	optimal Device
}

func NewSelector(probe ProbeFunc, logger *zap.Logger) *Selector {
	if probe == nil {
		probe = ProbeHost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{probe: probe, logger: logger}
}

// NewStaticSelector serves fixed capabilities without probing.
func NewStaticSelector(caps Capabilities) *Selector {
	return NewSelector(func() Capabilities { return caps }, nil)
}

func (s *Selector) load() {
	s.once.Do(func() {
		s.caps = s.probe()
		if s.caps.CPUCount <= 0 {
			s.caps.CPUCount = 1
		}
		if s.caps.CUDADevices == nil {
			s.caps.CUDADevices = []string{}
		}
		s.optimal = OptimalDevice(s.caps)
		s.logger.Info("compute devices detected",
			zap.Bool("cuda", s.caps.CUDAAvailable),
			zap.Int("cuda_devices", s.caps.CUDADeviceCount),
			zap.Bool("mps", s.caps.MPSAvailable),
			zap.Int("cpus", s.caps.CPUCount),
			zap.String("optimal", s.optimal.String()),
		)
	})
}

// Capabilities returns a copy of the probed host capabilities.
func (s *Selector) Capabilities() Capabilities {
	s.load()
	out := s.caps
	out.CUDADevices = append([]string(nil), s.caps.CUDADevices...)
	return out
}

func (s *Selector) OptimalDevice() Device {
	s.load()
	return s.optimal
}

// Resolve returns the optimal device for an absent request and the request otherwise.
func (s *Selector) Resolve(requested Device) Device {
	if requested == "" {
		return s.OptimalDevice()
	}
	return requested
}

// Supports reports whether the host can run on device.
func (s *Selector) Supports(device Device) error {
	s.load()

	if index, ok := device.CUDAIndex(); ok {
		if !s.caps.CUDAAvailable || s.caps.CUDADeviceCount == 0 {
			return fmt.Errorf("device %s requested but no CUDA accelerator is available", device)
		}
		if index >= s.caps.CUDADeviceCount {
			return fmt.Errorf("device %s requested but only %d CUDA accelerator(s) present", device, s.caps.CUDADeviceCount)
		}
		return nil
	}

	switch device {
	case DeviceMPS:
		if !s.caps.MPSAvailable {
			return fmt.Errorf("device %s requested but Metal is not available on %s/%s", device, s.caps.OS, s.caps.Arch)
		}
		return nil
	case DeviceCPU:
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownDevice, string(device))
	}
}
