// settlement-gateway/internal/roles/roles_test.go
package roles

import "testing"

type staticDirectory map[string]string

func (d staticDirectory) HasRole(role, account string) bool {
	return d[role] == account
}

func TestTable(t *testing.T) {
	tab := NewTable()
	if tab.HasRole(PriceFeeder, "alice") {
		t.Fatal("empty table granted a role")
	}
	tab.Grant(PriceFeeder, "alice")
	if !tab.HasRole(PriceFeeder, "alice") {
		t.Fatal("grant not visible")
	}
	tab.Revoke(PriceFeeder, "alice")
	if tab.HasRole(PriceFeeder, "alice") {
		t.Fatal("revoke not applied")
	}
}

func TestManagerScopedFirstMatch(t *testing.T) {
	m := NewManager()
	m.GrantScoped("FeeProcessor", ProcessorAdmin, "alice")

	if !m.HasScopedRole("FeeProcessor", ProcessorAdmin, "alice") {
		t.Fatal("scoped grant not honored")
	}
	if m.HasScopedRole("OracleProcessor", ProcessorAdmin, "alice") {
		t.Fatal("scoped grant must not leak across processors")
	}

	m.GrantSystem(ProcessorAdmin, "bob")
	if !m.HasScopedRole("OracleProcessor", ProcessorAdmin, "bob") {
		t.Fatal("system grant must back any processor scope")
	}

	m.RevokeScoped("FeeProcessor", ProcessorAdmin, "alice")
	if m.HasScopedRole("FeeProcessor", ProcessorAdmin, "alice") {
		t.Fatal("scoped revoke not applied")
	}
}

func TestManagerExternalFallback(t *testing.T) {
	m := NewManager()
	if m.HasRole(DiscountManager, "carol") {
		t.Fatal("no grants, no external, should deny")
	}
	m.AttachExternal(staticDirectory{DiscountManager: "carol"})
	if !m.HasRole(DiscountManager, "carol") {
		t.Fatal("external directory must be consulted last")
	}
	if !m.HasScopedRole("DiscountProcessor", DiscountManager, "carol") {
		t.Fatal("scoped check must also fall through to external")
	}
}
