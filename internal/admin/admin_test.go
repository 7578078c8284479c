package admin

import (
	"context"
	"testing"

	"google.golang.org/protobuf/types/known/emptypb"

	"pokeduel/internal/duelsession"
)

type fakeProvider struct {
	snapshot duelsession.Snapshot
	phase    string
}

func (f fakeProvider) Snapshot() duelsession.Snapshot { return f.snapshot }
func (f fakeProvider) BattlePhase() string            { return f.phase }

func TestStatusReportsRosterAndPhase(t *testing.T) {
	session := duelsession.New(duelsession.WithDuelID("duel-1"))
	session.JoinHost("Ash")
	session.JoinOpponent("Gary")
	session.JoinSpectator("Misty")

	svc := NewService(fakeProvider{snapshot: session.Snapshot(), phase: "WAITING_FOR_MOVE"})
	result, err := svc.Status(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	fields := result.AsMap()
	if fields["duel_id"] != "duel-1" {
		t.Fatalf("unexpected duel_id: %v", fields["duel_id"])
	}
	if fields["battle_phase"] != "WAITING_FOR_MOVE" {
		t.Fatalf("unexpected battle_phase: %v", fields["battle_phase"])
	}
	if fields["host"] != "Ash" || fields["joiner"] != "Gary" {
		t.Fatalf("unexpected host/joiner: %+v", fields)
	}
	spectators, ok := fields["spectators"].([]any)
	if !ok || len(spectators) != 1 || spectators[0] != "Misty" {
		t.Fatalf("unexpected spectators: %+v", fields["spectators"])
	}
}

func TestStatusRejectsUnconfiguredService(t *testing.T) {
	svc := &Service{}
	if _, err := svc.Status(context.Background(), &emptypb.Empty{}); err == nil {
		t.Fatal("expected an error for a service without a provider")
	}
}

func TestStatusHandlerDecodesEmptyAndInvokesServer(t *testing.T) {
	session := duelsession.New(duelsession.WithDuelID("duel-2"))
	svc := NewService(fakeProvider{snapshot: session.Snapshot(), phase: "SETUP"})

	dec := func(v any) error { return nil }
	result, err := statusHandler(Server(svc), context.Background(), dec, nil)
	if err != nil {
		t.Fatalf("statusHandler: %v", err)
	}
	if result == nil {
		t.Fatal("expected a non-nil result")
	}
}
