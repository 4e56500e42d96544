// Package tools holds the per-tool capabilities the shared invoker is
// polymorphic over: command resolution, output failure signatures, and the
// parse patterns for the version banner and the device listing.
package tools

import (
	"regexp"

	"avrbridge/internal/domain"
)

const (
	AvariceID      = "avarice"
	avariceName    = "AVaRICE"
	avariceDefault = "avarice"
)

var (
	// Banner: "AVaRICE version 2.8, Nov  7 2008 22:02:05"
	avariceVersionPattern = regexp.MustCompile(`.*version\s+([\w.]+).*`)

	// Listing: device id followed by whitespace and the 0x device signature.
	avariceDevicePattern = regexp.MustCompile(`^(\w+)\s+0x.+$`)

	avariceAbortSignatures = []abortSignature{
		{match: "did not respond", reason: "target device did not respond"},
		{match: "no response from target", reason: "target device did not respond"},
		{match: "can't open device", reason: "port not accessible"},
		{match: "usb bulk read error", reason: "USB communication error"},
		{match: "failed to connect", reason: "no JTAG ICE found"},
	}
)

// Avarice is the AVaRICE JTAG/debugWIRE bridge.
type Avarice struct{}

func (Avarice) ID() string   { return AvariceID }
func (Avarice) Name() string { return avariceName }

func (Avarice) Command(cfg domain.Config) string {
	if command := cfg.Attribute(AvariceID + ".command"); command != "" {
		return command
	}
	return avariceDefault
}

func (Avarice) NewOutputListener() domain.OutputListener {
	return newSignatureListener(avariceAbortSignatures)
}

// VersionArgs: avarice prints its banner before complaining about the
// missing arguments, so no flag is needed.
func (Avarice) VersionArgs() []string { return nil }

func (Avarice) ParseVersion(line string) (string, bool) {
	m := avariceVersionPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (Avarice) DeviceListArgs() []string { return []string{"--known-devices"} }

func (Avarice) ParseDevice(line string) (string, bool) {
	m := avariceDevicePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (Avarice) Defaults() map[string]string {
	return map[string]string{
		AvariceID + ".command":    avariceDefault,
		AvariceID + ".useconsole": "false",
	}
}
