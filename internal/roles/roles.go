// settlement-gateway/internal/roles/roles.go
package roles

import "sync"

// Capability names checked before privileged operations.
const (
	ProcessorManager = "processor_manager"
	ProcessorAdmin   = "processor_admin"
	DiscountManager  = "discount_manager"
	PriceFeeder      = "price_feeder"
)

// Directory answers "does this account hold role X". The external
// role/identity service sits behind this boundary.
type Directory interface {
	HasRole(role, account string) bool
}

// Table is a plain local role table.
type Table struct {
	mu     sync.RWMutex
	grants map[string]map[string]bool // role -> account -> granted
}

func NewTable() *Table {
	return &Table{grants: make(map[string]map[string]bool)}
}

func (t *Table) Grant(role, account string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.grants[role] == nil {
		t.grants[role] = make(map[string]bool)
	}
	t.grants[role][account] = true
}

func (t *Table) Revoke(role, account string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.grants[role], account)
}

func (t *Table) HasRole(role, account string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.grants[role][account]
}

// Manager is the centralized role manager: processor-scoped grants first,
// then system-wide grants, then an optionally attached external directory.
// First match wins.
type Manager struct {
	mu       sync.RWMutex
	scoped   map[string]*Table // processor name -> grants
	system   *Table
	external Directory
}

func NewManager() *Manager {
	return &Manager{scoped: make(map[string]*Table), system: NewTable()}
}

// AttachExternal wires the external role directory fallback.
func (m *Manager) AttachExternal(d Directory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.external = d
}

func (m *Manager) GrantSystem(role, account string) {
	m.system.Grant(role, account)
}

func (m *Manager) RevokeSystem(role, account string) {
	m.system.Revoke(role, account)
}

func (m *Manager) GrantScoped(processor, role, account string) {
	m.mu.Lock()
	t := m.scoped[processor]
	if t == nil {
		t = NewTable()
		m.scoped[processor] = t
	}
	m.mu.Unlock()
	t.Grant(role, account)
}

func (m *Manager) RevokeScoped(processor, role, account string) {
	m.mu.RLock()
	t := m.scoped[processor]
	m.mu.RUnlock()
	if t != nil {
		t.Revoke(role, account)
	}
}

// HasScopedRole checks a processor-scoped grant, falling back to the
// system-wide grant and then the external directory.
func (m *Manager) HasScopedRole(processor, role, account string) bool {
	m.mu.RLock()
	t := m.scoped[processor]
	ext := m.external
	m.mu.RUnlock()
	if t != nil && t.HasRole(role, account) {
		return true
	}
	if m.system.HasRole(role, account) {
		return true
	}
	return ext != nil && ext.HasRole(role, account)
}

// HasRole satisfies Directory using system-wide grants plus the external
// fallback.
func (m *Manager) HasRole(role, account string) bool {
	if m.system.HasRole(role, account) {
		return true
	}
	m.mu.RLock()
	ext := m.external
	m.mu.RUnlock()
	return ext != nil && ext.HasRole(role, account)
}
