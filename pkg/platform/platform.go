// Package platform maps host facts to Treeherder's platform vocabulary.
//
// Treeherder identifies the machine a job ran on by a triple of OS family,
// platform label and architecture, e.g. ("linux", "linux64", "x86_64") or
// ("win", "windows7-64", "x86_64"). Resolve is a pure function of the host
// facts so it can be tested without touching the running host; Detect
// gathers those facts for the current process.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

// OS family values accepted by Resolve.
const (
	OSLinux   = "linux"
	OSMac     = "mac"
	OSWindows = "win"
)

// ErrUnsupportedPlatform indicates the host OS has no Treeherder mapping.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// windowsVersions maps Windows NT versions to Treeherder release names.
var windowsVersions = map[string]string{
	"5.1": "xp",
	"6.1": "7",
	"6.2": "8",
}

// Info holds the raw host facts used to resolve a platform.
type Info struct {
	// OS is the OS family: "linux", "mac" or "win".
	OS string `json:"os"`

	// Bits is the pointer width of the build, usually 32 or 64.
	Bits int `json:"bits"`

	// Processor is the architecture name passed through to Treeherder
	// (e.g. "x86_64", "x86", "aarch64").
	Processor string `json:"processor"`

	// OSVersion is the OS release, e.g. "10.15" on mac or "6.1" on Windows.
	OSVersion string `json:"os_version"`
}

// Platform is the Treeherder platform triple.
type Platform struct {
	OSName       string `json:"os_name"`
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
}

// String renders the triple as "os_name/platform/architecture".
func (p Platform) String() string {
	return p.OSName + "/" + p.Platform + "/" + p.Architecture
}

// Error reports a host that could not be mapped.
type Error struct {
	Info Info
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Info.OSVersion != "" {
		return fmt.Sprintf("platform %s %s (%d bit): %v", e.Info.OS, e.Info.OSVersion, e.Info.Bits, e.Err)
	}
	return fmt.Sprintf("platform %s (%d bit): %v", e.Info.OS, e.Info.Bits, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Resolve maps host facts to a Treeherder platform triple.
//
// Rules:
//   - linux: ("linux", "linux<bits>", processor)
//   - mac:   ("mac", "osx-<major>-<minor>", processor); patch releases are dropped
//   - win:   ("win", "windows<name>[-<bits>]", processor); XP (5.1) has no bit suffix
//
// Any other OS, a mac without a version, or a Windows version outside the
// release table returns an *Error wrapping ErrUnsupportedPlatform. No partial platform is returned.
func Resolve(info Info) (Platform, error) {
	switch info.OS {
	case OSLinux:
		return Platform{
			OSName:       OSLinux,
			Platform:     fmt.Sprintf("%s%d", info.OS, info.Bits),
			Architecture: info.Processor,
		}, nil

	case OSMac:
		version := macMajorMinor(info.OSVersion)
		if version == "" {
			return Platform{}, &Error{
				Info: info,
				Err:  fmt.Errorf("%w: mac version is unknown", ErrUnsupportedPlatform),
			}
		}
		return Platform{
			OSName:       OSMac,
			Platform:     "osx-" + strings.ReplaceAll(version, ".", "-"),
			Architecture: info.Processor,
		}, nil

	case OSWindows:
		name, ok := windowsVersions[info.OSVersion]
		if !ok {
			return Platform{}, &Error{
				Info: info,
				Err:  fmt.Errorf("%w: unknown windows version %q", ErrUnsupportedPlatform, info.OSVersion),
			}
		}
		suffix := ""
		if info.OSVersion != "5.1" {
			suffix = fmt.Sprintf("-%d", info.Bits)
		}
		return Platform{
			OSName:       OSWindows,
			Platform:     "windows" + name + suffix,
			Architecture: info.Processor,
		}, nil
	}

	return Platform{}, &Error{Info: info, Err: ErrUnsupportedPlatform}
}

// IsUnsupported returns true if the error indicates an unmapped platform.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedPlatform)
}

// macMajorMinor trims a product version such as "14.2.1" to "14.2".
// A bare major version ("11") is kept as is.
func macMajorMinor(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	parts := strings.SplitN(version, ".", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}
