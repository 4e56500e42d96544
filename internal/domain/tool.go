package domain

// Config is the per-target configuration surface consumed by tools and the
// invoker. Reads are by string-keyed attribute lookup; an absent key yields
// the empty string (or false for booleans).
type Config interface {
	Attribute(key string) string
	BoolAttribute(key string) bool
}

// Tool describes one concrete external programmer tool (avrdude, avarice).
// It carries the tool-specific knowledge the shared invoker is polymorphic
// over: how to resolve the command, how to recognize failure signatures in
// the output, and how to parse the version banner and the device list.
type Tool interface {
	// ID is the stable identifier, used in attribute keys and records.
	ID() string

	// Name is the human-readable tool name used in messages.
	Name() string

	// Command returns the resolved command for this tool: the configured
	// "<id>.command" attribute, or the tool's default executable name. The
	// returned string is used verbatim, without path canonicalization.
	Command(cfg Config) string

	// NewOutputListener returns a fresh listener for one invocation.
	NewOutputListener() OutputListener

	// VersionArgs are the arguments that make the tool print its
	// self-identifying banner.
	VersionArgs() []string

	// ParseVersion extracts the version number from one banner line.
	ParseVersion(line string) (version string, ok bool)

	// DeviceListArgs are the arguments that make the tool list the devices
	// it supports.
	DeviceListArgs() []string

	// ParseDevice extracts a device id from one line of the device listing.
	ParseDevice(line string) (deviceID string, ok bool)

	// Defaults returns the default attribute values this tool contributes
	// to a target configuration.
	Defaults() map[string]string
}
