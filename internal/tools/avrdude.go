package tools

import (
	"regexp"

	"avrbridge/internal/domain"
)

const (
	AvrdudeID      = "avrdude"
	avrdudeName    = "AVRDude"
	avrdudeDefault = "avrdude"
)

var (
	// Banner: "avrdude version 6.3-20190619, URL: <http://...>"
	avrdudeVersionPattern = regexp.MustCompile(`.*version\s+([\w.-]+).*`)

	// Part listing: "  m128 = ATmega128 [...]" — the short id is what
	// callers use on the command line.
	avrdudeDevicePattern = regexp.MustCompile(`^\s*(\w+)\s*=\s*\S.*$`)

	avrdudeAbortSignatures = []abortSignature{
		{match: "can't open device", reason: "port not accessible"},
		{match: "ser_open()", reason: "port not accessible"},
		{match: "initialization failed, rc=-1", reason: "device initialization failed"},
		{match: "programmer is not responding", reason: "programmer not responding"},
		{match: "usb_open", reason: "USB programmer not found"},
		{match: "timeout", reason: "programmer communication timeout"},
	}
)

// Avrdude is the avrdude device programmer.
type Avrdude struct{}

func (Avrdude) ID() string   { return AvrdudeID }
func (Avrdude) Name() string { return avrdudeName }

func (Avrdude) Command(cfg domain.Config) string {
	if command := cfg.Attribute(AvrdudeID + ".command"); command != "" {
		return command
	}
	return avrdudeDefault
}

func (Avrdude) NewOutputListener() domain.OutputListener {
	return newSignatureListener(avrdudeAbortSignatures)
}

// VersionArgs: without arguments avrdude prints its usage text, which
// carries the version line.
func (Avrdude) VersionArgs() []string { return nil }

func (Avrdude) ParseVersion(line string) (string, bool) {
	m := avrdudeVersionPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DeviceListArgs: "-p ?" makes avrdude list every part it knows.
func (Avrdude) DeviceListArgs() []string { return []string{"-p", "?"} }

func (Avrdude) ParseDevice(line string) (string, bool) {
	m := avrdudeDevicePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (Avrdude) Defaults() map[string]string {
	return map[string]string{
		AvrdudeID + ".command":    avrdudeDefault,
		AvrdudeID + ".useconsole": "false",
	}
}
