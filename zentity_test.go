package zentity

import (
	"context"
	"errors"
	"testing"
)

func testConfig(backend string) *Config {
	cfg := &Config{}
	cfg.Store.Backend = backend
	cfg.Security.AdminGroupName = "Administrators"
	cfg.Security.AdminIdentityName = "Administrator"
	cfg.Security.AllUsersGroupName = "AllUsers"
	cfg.Security.GuestIdentityName = "Guest"
	cfg.Security.MembershipURI = "urn:test:member-of"
	cfg.Security.CreateAllowURI = "urn:test:allow-create"
	cfg.Security.CreateDenyURI = "urn:test:deny-create"
	cfg.Security.ReadAllowURI = "urn:test:allow-read"
	cfg.Security.ReadDenyURI = "urn:test:deny-read"
	cfg.Security.UpdateAllowURI = "urn:test:allow-update"
	cfg.Security.UpdateDenyURI = "urn:test:deny-update"
	cfg.Security.DeleteAllowURI = "urn:test:allow-delete"
	cfg.Security.DeleteDenyURI = "urn:test:deny-delete"
	cfg.Security.OwnerAllowURI = "urn:test:allow-owner"
	cfg.Security.OwnerDenyURI = "urn:test:deny-owner"
	return cfg
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	_, err := OpenStores(context.Background(), testConfig("sqlite"))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("OpenStores(sqlite) error = %v, want ErrConfiguration", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, _, err := New(context.Background(), testConfig("memory"))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("New(memory) error = %v, want ErrConfiguration", err)
	}
}

func TestNewSecurityService_ExportedSurface(t *testing.T) {
	cfg := testConfig("postgres")

	cat, err := NewCatalog(cfg.Security.Predicates())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	// Nil repositories are a configuration error, reported through the
	// exported sentinel.
	_, err = NewSecurityService(cfg.Security.Settings(), cat, nil, nil, nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("NewSecurityService(nil repos) error = %v, want ErrConfiguration", err)
	}
}

func TestStores_CloseWithoutBackend(t *testing.T) {
	var stores Stores
	if err := stores.Close(context.Background()); err != nil {
		t.Errorf("Close() on zero-value stores error = %v, want nil", err)
	}
}
