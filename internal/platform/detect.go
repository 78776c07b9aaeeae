package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "voxscribe"

// Runtime names the operating system and normalized architecture of a host.
type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

// AppleSilicon reports whether the runtime has the integrated Metal accelerator.
func (r Runtime) AppleSilicon() bool {
	return r.OS == "darwin" && r.Arch == "arm64"
}

// Target is the os_arch pair used to lay out bundled engine binaries.
func (r Runtime) Target() string {
	return r.OS + "_" + r.Arch
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

// DataDirs carries the environment that decides where models live.
type DataDirs struct {
	OS           string
	Home         string
	XDGDataHome  string
	LocalAppData string
	Temp         string
}

func hostDataDirs() DataDirs {
	home, _ := os.UserHomeDir()
	return DataDirs{
		OS:           runtime.GOOS,
		Home:         home,
		XDGDataHome:  os.Getenv("XDG_DATA_HOME"),
		LocalAppData: os.Getenv("LOCALAPPDATA"),
		Temp:         os.TempDir(),
	}
}

// ModelDir returns the per-user model directory. Service accounts without a
// home directory fall back to the system temp directory.
func (d DataDirs) ModelDir() string {
	return filepath.Join(d.dataDir(), "models")
}

func (d DataDirs) dataDir() string {
	switch {
	case d.OS == "windows" && d.LocalAppData != "":
		return filepath.Join(d.LocalAppData, appDirName)
	case d.OS == "darwin" && d.Home != "":
		return filepath.Join(d.Home, "Library", "Application Support", appDirName)
	case d.XDGDataHome != "":
		return filepath.Join(d.XDGDataHome, appDirName)
	case d.Home != "":
		return filepath.Join(d.Home, ".local", "share", appDirName)
	default:
		return filepath.Join(d.Temp, appDirName)
	}
}

func ResolveModelDir(override string) string {
	if override != "" {
		return filepath.Clean(override)
	}
	return hostDataDirs().ModelDir()
}

// EnsureModelDir resolves the model directory and creates it when missing.
func EnsureModelDir(override string) (string, error) {
	dir := ResolveModelDir(override)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}
