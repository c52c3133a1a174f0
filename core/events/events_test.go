package events

import (
	"bytes"
	"math/big"
	"testing"

	"escrowd/crypto"
)

func testAddress(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, crypto.AddressLength))
	return addr
}

func TestEscrowEventRecords(t *testing.T) {
	buyer, seller, arbiter := testAddress(1), testAddress(2), testAddress(3)

	created := EscrowCreated{ID: 7, Buyer: buyer, Seller: seller, Arbiter: arbiter, Deadline: 1_700_000_100, CreatedAt: 1_700_000_000}
	rec := ToRecord(created)
	if rec.Type != TypeEscrowCreated {
		t.Fatalf("unexpected type %s", rec.Type)
	}
	if rec.EscrowID() != "7" {
		t.Fatalf("unexpected id %q", rec.EscrowID())
	}
	if rec.Attributes["arbiter"] != arbiter.String() || rec.Attributes["deadline"] != "1700000100" {
		t.Fatalf("unexpected attributes %+v", rec.Attributes)
	}

	funded := ToRecord(EscrowFunded{ID: 7, Buyer: buyer, Amount: big.NewInt(975), Fee: big.NewInt(25)})
	if funded.Attributes["amount"] != "975" || funded.Attributes["fee"] != "25" {
		t.Fatalf("unexpected funded attributes %+v", funded.Attributes)
	}

	completed := ToRecord(EscrowCompleted{ID: 7})
	if completed.Attributes["sellerAmount"] != "0" || completed.Attributes["fee"] != "0" {
		t.Fatalf("nil amounts should render as zero: %+v", completed.Attributes)
	}
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestToRecordWithoutPayload(t *testing.T) {
	rec := ToRecord(bareEvent{})
	if rec.Type != "bare" || len(rec.Attributes) != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if ToRecord(nil).Type != "" {
		t.Fatalf("nil event should yield empty record")
	}
}

func TestMultiEmitterFansOut(t *testing.T) {
	var first, second Recorder
	multi := MultiEmitter{&first, nil, &second}
	multi.Emit(EscrowDelivered{ID: 1, Seller: testAddress(2)})
	if len(first.Events()) != 1 || len(second.Events()) != 1 {
		t.Fatalf("expected both recorders to receive the event")
	}
	if got := first.Types(); got[0] != TypeEscrowDelivered {
		t.Fatalf("unexpected types %v", got)
	}
}

func TestBroadcasterDeliversAndDrops(t *testing.T) {
	b := NewBroadcaster()
	sub, cancel := b.Subscribe(1)
	defer cancel()

	b.Emit(Paused{Account: testAddress(9)})
	b.Emit(Unpaused{Account: testAddress(9)})

	rec := <-sub.C
	if rec.Type != TypePaused {
		t.Fatalf("unexpected record %+v", rec)
	}
	if sub.Dropped() != 1 {
		t.Fatalf("expected one dropped record, got %d", sub.Dropped())
	}
	if b.Len() != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if b.Len() != 0 {
		t.Fatalf("expected subscriber removed")
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}
	b.Emit(Paused{})
}
