package transport

import (
	"net"
	"testing"
	"time"
)

func TestNewTCPChannelRejectsUnspecifiedAdvertiseAddress(t *testing.T) {
	if _, err := NewTCPChannel("0.0.0.0:0", nil); err != ErrorNotAdvertiseAddress {
		t.Fatalf("expected ErrorNotAdvertiseAddress, got %v", err)
	}
}

func TestWriteFrameReadFrameRoundTrip(t *testing.T) {
	chan1, err := NewTCPChannel("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPChannel: %v", err)
	}
	defer chan1.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := chan1.Accept(2 * time.Second)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- conn
	}()

	client, err := Dial(chan1.LocalAddress())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	payload := []byte("hello, peer")
	if err := WriteFrame(client, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(server, time.Second)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestReadFrameHonorsDeadlineWhenNothingArrives(t *testing.T) {
	chan1, err := NewTCPChannel("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPChannel: %v", err)
	}
	defer chan1.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := chan1.Accept(2 * time.Second)
		accepted <- conn
	}()

	client, err := Dial(chan1.LocalAddress())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	if _, err := ReadFrame(server, 20*time.Millisecond); err == nil {
		t.Fatalf("expected a timeout error when no frame arrives")
	}
}
