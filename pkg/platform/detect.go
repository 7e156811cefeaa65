package platform

import (
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
)

// versionRunner runs a command and returns its stdout. Replaced in tests.
type versionRunner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var winVerPattern = regexp.MustCompile(`(\d+)\.(\d+)\.\d+`)

// Detect gathers host facts for the running process.
//
// OS version lookup is best effort: when the version command fails the
// OSVersion field is left empty and Resolve rejects the host.
func Detect(ctx context.Context) Info {
	return detect(ctx, runtime.GOOS, runtime.GOARCH, strconv.IntSize, execRunner)
}

func detect(ctx context.Context, goos, goarch string, bits int, run versionRunner) Info {
	info := Info{
		OS:        osFamily(goos),
		Bits:      bits,
		Processor: processorName(goarch),
	}

	switch info.OS {
	case OSMac:
		if out, err := run(ctx, "sw_vers", "-productVersion"); err == nil {
			info.OSVersion = macMajorMinor(out)
		}
	case OSWindows:
		if out, err := run(ctx, "cmd", "/c", "ver"); err == nil {
			info.OSVersion = parseWindowsVersion(out)
		}
	}

	return info
}

func osFamily(goos string) string {
	switch goos {
	case "darwin":
		return OSMac
	case "windows":
		return OSWindows
	default:
		return goos
	}
}

func processorName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	case "arm64":
		return "aarch64"
	default:
		return goarch
	}
}

// parseWindowsVersion extracts "major.minor" from `ver` output such as
// "Microsoft Windows [Version 6.1.7601]".
func parseWindowsVersion(out string) string {
	m := winVerPattern.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[1] + "." + m[2]
}
