package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Entry is one (resource, action) pair of the system catalog.
type Entry struct {
	Resource string `yaml:"resource" json:"resource"`
	Action   string `yaml:"action" json:"action"`
}

// PermissionName renders the canonical permission name for the entry.
func (e Entry) PermissionName() string {
	return PermissionName(e.Resource, e.Action)
}

// PermissionName renders "<Resource> Management - <Action>".
func PermissionName(resource, action string) string {
	return fmt.Sprintf("%s Management - %s", resource, action)
}

// Table is the set of permissions the system seeds on first run.
type Table struct {
	mu      sync.RWMutex
	entries map[Entry]string
}

// NewTable builds the canonical table: every canonical resource crossed with
// every canonical action.
func NewTable() *Table {
	t := &Table{entries: make(map[Entry]string)}
	for _, res := range shared.CanonicalResources() {
		for _, act := range shared.CanonicalActions() {
			t.Register(res, act)
		}
	}
	return t
}

// Register adds a pair to the table.
func (t *Table) Register(resource, action string) {
	e := Entry{Resource: strings.TrimSpace(resource), Action: strings.TrimSpace(action)}
	if e.Resource == "" || e.Action == "" {
		return
	}
	t.mu.Lock()
	t.entries[e] = e.PermissionName()
	t.mu.Unlock()
}

// Lookup returns the canonical permission name of a pair.
func (t *Table) Lookup(resource, action string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.entries[Entry{Resource: resource, Action: action}]
	return name, ok
}

// Entries returns the table sorted by resource then action.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// Len reports the number of registered pairs.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

type extensionFile struct {
	Permissions []Entry `yaml:"permissions"`
}

// LoadExtensions registers the pairs listed in a YAML file of the form
//
//	permissions:
//	  - resource: Invoice
//	    action: Approve
func (t *Table) LoadExtensions(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("catalog: read extensions: %w", err)
	}
	var file extensionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("catalog: parse extensions: %w", err)
	}
	n := 0
	for _, e := range file.Permissions {
		if strings.TrimSpace(e.Resource) == "" || strings.TrimSpace(e.Action) == "" {
			return n, fmt.Errorf("catalog: extension %d needs resource and action", n+1)
		}
		t.Register(e.Resource, e.Action)
		n++
	}
	return n, nil
}
