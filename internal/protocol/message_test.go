package protocol

import (
	"errors"
	"testing"

	"github.com/mincoin-project/mincoin/internal/chain"
)

func TestBuildParseRoundTrip(t *testing.T) {
	tx := &chain.Transaction{Sender: "a", Recipient: "b", Value: 3}
	coreSet := []string{"127.0.0.1:50082", "127.0.0.1:50090"}

	raw, err := Build(MsgNewTransaction, "127.0.0.1:50095", coreSet, tx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	env, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.MsgType != MsgNewTransaction {
		t.Fatalf("MsgType = %v, want %v", env.MsgType, MsgNewTransaction)
	}
	if env.MyAddr != "127.0.0.1:50095" {
		t.Fatalf("MyAddr = %v, want 127.0.0.1:50095", env.MyAddr)
	}
	if env.NewTransaction == nil || !env.NewTransaction.Equal(*tx) {
		t.Fatalf("NewTransaction = %v, want %v", env.NewTransaction, tx)
	}
	gotSet := map[string]bool{}
	for _, a := range env.NewCoreSet {
		gotSet[a] = true
	}
	for _, a := range coreSet {
		if !gotSet[a] {
			t.Fatalf("NewCoreSet missing %q: got %v", a, env.NewCoreSet)
		}
	}
}

func TestParseRejectsWrongProtocol(t *testing.T) {
	_, err := Parse([]byte(`{"protocol":"other_protocol","version":"0.1.0","msg_type":"Ping","my_addr":"x"}`))
	if err == nil {
		t.Fatal("expected ErrProtocolMismatch, got nil")
	}
	if want := ErrProtocolMismatch; !errors.Is(err, want) {
		t.Fatalf("error = %v, want wrapping %v", err, want)
	}
}

func TestParseRejectsNewerVersion(t *testing.T) {
	_, err := Parse([]byte(`{"protocol":"mincoin_protocol","version":"99.0.0","msg_type":"Ping","my_addr":"x"}`))
	if err == nil {
		t.Fatal("expected ErrVersionMismatch, got nil")
	}
	if want := ErrVersionMismatch; !errors.Is(err, want) {
		t.Fatalf("error = %v, want wrapping %v", err, want)
	}
}

func TestParseAcceptsOlderVersion(t *testing.T) {
	_, err := Parse([]byte(`{"protocol":"mincoin_protocol","version":"0.0.9","msg_type":"Ping","my_addr":"x"}`))
	if err != nil {
		t.Fatalf("Parse rejected an older, compatible version: %v", err)
	}
}
