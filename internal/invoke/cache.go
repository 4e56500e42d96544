package invoke

// metadataCache memoizes expensive derived tool facts per resolved command
// string, so read-only queries do not launch the tool again and again.
//
// The key is the literal configured command string, not a canonicalized
// path: two different strings naming the same binary keep independent
// entries. Entries are never evicted; the binary behind a command is
// assumed not to change within a process lifetime.
//
// The cache is not locked itself; the owning Invoker serializes access.
type metadataCache struct {
	versions map[string]string
	devices  map[string]map[string]struct{}
}

func newMetadataCache() *metadataCache {
	return &metadataCache{
		versions: make(map[string]string),
		devices:  make(map[string]map[string]struct{}),
	}
}

func (c *metadataCache) version(command string) (string, bool) {
	v, ok := c.versions[command]
	return v, ok
}

func (c *metadataCache) storeVersion(command, version string) {
	c.versions[command] = version
}

func (c *metadataCache) deviceSet(command string) (map[string]struct{}, bool) {
	set, ok := c.devices[command]
	if !ok {
		return nil, false
	}
	return copySet(set), true
}

func (c *metadataCache) storeDeviceSet(command string, set map[string]struct{}) {
	c.devices[command] = copySet(set)
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}
