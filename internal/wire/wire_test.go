package wire

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame := NewAttackAnnounce("Thunderbolt", 2)
	encoded := Encode(frame)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if decoded.Type() != AttackAnnounce {
		t.Fatalf("expected kind %q, got %q", AttackAnnounce, decoded.Type())
	}
	seq, err := decoded.SequenceNumber()
	if err != nil {
		t.Fatalf("sequence_number: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected sequence_number 2, got %d", seq)
	}
	if decoded["move_name"] != "Thunderbolt" {
		t.Fatalf("expected move_name Thunderbolt, got %q", decoded["move_name"])
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	if _, err := Decode([]byte("")); err == nil {
		t.Fatal("expected error decoding empty datagram")
	}
	if _, err := Decode([]byte("no colon here")); err == nil {
		t.Fatal("expected error decoding datagram without message_type")
	}
}

func TestDecodeSkipsMalformedLines(t *testing.T) {
	raw := "message_type: ACK\nack_number: 4\nnotaline\n"
	frame, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	ackNum, err := frame.AckNumber()
	if err != nil {
		t.Fatalf("ack_number: %v", err)
	}
	if ackNum != 4 {
		t.Fatalf("expected ack_number 4, got %d", ackNum)
	}
}

func TestBattleSetupRoundTrip(t *testing.T) {
	boosts := StatBoosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
	payload := PokemonPayload{Name: "Pikachu", HP: 35, Type1: "electric"}
	frame, err := NewBattleSetup("P2P", "Pikachu", boosts, payload, 1, 424242, true)
	if err != nil {
		t.Fatalf("NewBattleSetup returned error: %v", err)
	}
	encoded := Encode(frame)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	gotBoosts, err := decoded.DecodeStatBoosts()
	if err != nil {
		t.Fatalf("DecodeStatBoosts: %v", err)
	}
	if gotBoosts != boosts {
		t.Fatalf("expected boosts %+v, got %+v", boosts, gotBoosts)
	}
	gotPokemon, err := decoded.DecodePokemon()
	if err != nil {
		t.Fatalf("DecodePokemon: %v", err)
	}
	if gotPokemon.Name != "Pikachu" || gotPokemon.HP != 35 {
		t.Fatalf("unexpected pokemon payload: %+v", gotPokemon)
	}
	if decoded["seed"] != "424242" {
		t.Fatalf("expected seed 424242, got %q", decoded["seed"])
	}
}

func TestNewBattleSetupWithoutSeed(t *testing.T) {
	frame, err := NewBattleSetup("P2P", "Squirtle", StatBoosts{}, PokemonPayload{Name: "Squirtle"}, 1, 0, false)
	if err != nil {
		t.Fatalf("NewBattleSetup returned error: %v", err)
	}
	if _, ok := frame["seed"]; ok {
		t.Fatal("expected seed field to be omitted")
	}
}

func TestAckHasNoSequenceNumber(t *testing.T) {
	frame := NewAck(7)
	if _, err := frame.SequenceNumber(); err == nil {
		t.Fatal("expected ACK frame to have no sequence_number")
	}
	ackNum, err := frame.AckNumber()
	if err != nil {
		t.Fatalf("ack_number: %v", err)
	}
	if ackNum != 7 {
		t.Fatalf("expected ack_number 7, got %d", ackNum)
	}
}
