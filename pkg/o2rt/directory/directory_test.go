package directory

import (
	"testing"

	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

func TestDuplicateServiceNameRejected(t *testing.T) {
	d := New()
	if err := d.AddLocal("chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.AddLocal("chat"); err == nil {
		t.Fatalf("expected conflict on duplicate service name")
	}
}

func TestMissingServiceReportsFail(t *testing.T) {
	d := New()
	if d.StatusOf("nope") != Fail {
		t.Fatalf("expected Fail for unknown service")
	}
}

func TestPeerDropRemovesOwnedServices(t *testing.T) {
	d := New()
	peer := types.PeerID(7)
	_ = d.AddRemote("chat", peer)
	if d.StatusOf("chat") != RemoteNotime {
		t.Fatalf("expected RemoteNotime before sync")
	}
	dropped := d.OnPeerDrop(peer)
	if len(dropped) != 1 || dropped[0] != "chat" {
		t.Fatalf("expected chat reported dropped, got %v", dropped)
	}
	if d.StatusOf("chat") != Fail {
		t.Fatalf("expected Fail after drop")
	}
}

func TestLocalSyncTransitionsStatus(t *testing.T) {
	d := New()
	_ = d.AddLocal("chat")
	if d.StatusOf("chat").TimedDeliverable() {
		t.Fatalf("expected not timed-deliverable before sync")
	}
	d.SetLocalSynced(true)
	if !d.StatusOf("chat").TimedDeliverable() {
		t.Fatalf("expected timed-deliverable after sync")
	}
	if !d.StatusOf("chat").Deliverable() {
		t.Fatalf("synced local service must remain immediate-deliverable")
	}
}
