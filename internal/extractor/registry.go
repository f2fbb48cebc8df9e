package extractor

import (
	"fmt"
	"sync"
)

var (
	registryMu sync.RWMutex
	ruleSets   = make(map[string]func() []Rule)
)

// Register makes a named rule set available to ForName.
func Register(name string, rules func() []Rule) {
	registryMu.Lock()
	defer registryMu.Unlock()
	ruleSets[name] = rules
}

// ForName returns a fresh copy of a registered rule set.
func ForName(name string) ([]Rule, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := ruleSets[name]
	if !ok {
		return nil, fmt.Errorf("rule set not found: %s", name)
	}
	return fn(), nil
}

func init() {
	Register("report", DefaultRules)
}
