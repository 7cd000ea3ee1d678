package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anyclaw/anyclaw/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	applied, err := db.migrate(context.Background())
	if err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second migrate() applied %v, want nothing", applied)
	}
}

func TestUpsertUserKeepsIDAndTouchesName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u1, err := db.UpsertUser(ctx, "15551234567", "Alice")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	u2, err := db.UpsertUser(ctx, "15551234567", "Alicia")
	if err != nil {
		t.Fatalf("UpsertUser (2): %v", err)
	}
	if u1.ID != u2.ID {
		t.Errorf("user id changed on upsert: %q -> %q", u1.ID, u2.ID)
	}
	if u2.Name != "Alicia" {
		t.Errorf("name = %q, want Alicia", u2.Name)
	}
	if len(u1.ID) != 12 {
		t.Errorf("id length = %d, want 12", len(u1.ID))
	}
}

func TestGatewayLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u, _ := db.UpsertUser(ctx, "15550000001", "Bob")

	if _, ok, err := db.MaxGatewayPort(ctx); err != nil || ok {
		t.Fatalf("MaxGatewayPort on empty table = ok:%v err:%v", ok, err)
	}

	g := &models.Gateway{ID: "gw1", UserID: u.ID, Profile: "anyclaw-gw1", Port: 19100}
	if err := db.InsertGateway(ctx, g); err != nil {
		t.Fatalf("InsertGateway: %v", err)
	}
	if g.Status != models.GatewayCreated {
		t.Errorf("default status = %q, want created", g.Status)
	}

	port, ok, err := db.MaxGatewayPort(ctx)
	if err != nil || !ok || port != 19100 {
		t.Fatalf("MaxGatewayPort = %d,%v,%v", port, ok, err)
	}

	if err := db.SetGatewayConnected(ctx, "gw1", "15550000001"); err != nil {
		t.Fatalf("SetGatewayConnected: %v", err)
	}
	got, err := db.GetGatewayByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetGatewayByUser: %v", err)
	}
	if got.Status != models.GatewayConnected || got.PhoneValue() != "15550000001" {
		t.Errorf("got status=%q phone=%q", got.Status, got.PhoneValue())
	}

	if err := db.DeleteGateway(ctx, "gw1"); err != nil {
		t.Fatalf("DeleteGateway: %v", err)
	}
	if _, err := db.GetGateway(ctx, "gw1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetGateway after delete err = %v, want ErrNotFound", err)
	}
	if err := db.UpdateGatewayStatus(ctx, "gw1", models.GatewayError); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateGatewayStatus on missing row err = %v, want ErrNotFound", err)
	}
}

func TestGatewayPortAndTenantUnique(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a, _ := db.UpsertUser(ctx, "15550000001", "A")
	b, _ := db.UpsertUser(ctx, "15550000002", "B")

	if err := db.InsertGateway(ctx, &models.Gateway{ID: "g1", UserID: a.ID, Profile: "p1", Port: 19100}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertGateway(ctx, &models.Gateway{ID: "g2", UserID: b.ID, Profile: "p2", Port: 19100}); err == nil {
		t.Error("expected duplicate port to be rejected")
	}
	if err := db.InsertGateway(ctx, &models.Gateway{ID: "g3", UserID: a.ID, Profile: "p3", Port: 19101}); err == nil {
		t.Error("expected second gateway for the same tenant to be rejected")
	}
}

func TestAgentPatchAndLinking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u, _ := db.UpsertUser(ctx, "15550000001", "Carol")

	a := &models.Agent{ID: "ag1", UserID: u.ID, Name: "Max", TemplateID: "assistant"}
	if err := db.InsertAgent(ctx, a); err != nil {
		t.Fatalf("InsertAgent: %v", err)
	}

	name := "Maxine"
	if err := db.PatchAgent(ctx, "ag1", AgentPatch{Name: &name}); err != nil {
		t.Fatalf("PatchAgent: %v", err)
	}
	if err := db.MarkAgentLinking(ctx, "ag1", "gw1", "/tmp/ws"); err != nil {
		t.Fatalf("MarkAgentLinking: %v", err)
	}

	got, err := db.GetAgent(ctx, "ag1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Name != "Maxine" || got.Status != models.AgentLinking {
		t.Errorf("got name=%q status=%q", got.Name, got.Status)
	}
	if got.GatewayID == nil || *got.GatewayID != "gw1" || got.Workspace != "/tmp/ws" {
		t.Errorf("gateway binding not recorded: %+v", got)
	}

	bad := "deleted"
	if err := db.PatchAgent(ctx, "ag1", AgentPatch{Status: &bad}); err == nil {
		t.Error("expected CHECK constraint to reject unknown status")
	}
}

func TestUsageAccumulatesAndPrunes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u, _ := db.UpsertUser(ctx, "15550000001", "Dan")
	db.InsertAgent(ctx, &models.Agent{ID: "ag1", UserID: u.ID, Name: "X", TemplateID: "assistant"})

	db.RecordUsage(ctx, "ag1", "2026-01-01", 1, 2, 30)
	db.RecordUsage(ctx, "ag1", "2026-01-01", 3, 4, 70)
	db.RecordUsage(ctx, "ag1", "2026-02-01", 1, 1, 10)

	totals, err := db.UsageTotals(ctx, "ag1")
	if err != nil {
		t.Fatalf("UsageTotals: %v", err)
	}
	if totals.MessagesIn != 5 || totals.MessagesOut != 7 || totals.Tokens != 110 {
		t.Errorf("totals = %+v", totals)
	}

	daily, _ := db.UsageSince(ctx, "ag1", "2026-01-15")
	if len(daily) != 1 || daily[0].Date != "2026-02-01" {
		t.Errorf("UsageSince = %+v", daily)
	}

	n, err := db.PruneUsage(ctx, "2026-01-15")
	if err != nil || n != 1 {
		t.Errorf("PruneUsage = %d, %v; want 1", n, err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if v, err := db.GetSetting(ctx, "jwt_secret"); err != nil || v != "" {
		t.Fatalf("GetSetting unset = %q, %v", v, err)
	}
	db.SetSetting(ctx, "jwt_secret", "a")
	db.SetSetting(ctx, "jwt_secret", "b")
	if v, _ := db.GetSetting(ctx, "jwt_secret"); v != "b" {
		t.Errorf("GetSetting = %q, want b", v)
	}
}

func TestAuditIsScopedToTenant(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	db.LogAudit(ctx, "u1", AuditAgentCreated, "agent", "ag1", "Ada")
	db.LogAudit(ctx, "u1", AuditGatewayCreated, "gateway", "gw1", "")
	db.LogAudit(ctx, "u2", AuditAgentCreated, "agent", "ag2", "Bob")

	events, err := db.ListAudit(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("u1 sees %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.UserID != "u1" {
			t.Errorf("leaked event %+v", e)
		}
	}

	n, err := db.PruneAudit(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 3 {
		t.Errorf("PruneAudit = %d, %v; want 3", n, err)
	}
}
