package p2p

import (
	"net"
	"testing"
)

func TestFrameTransportRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewFrameTransport(clientConn)
	server := NewFrameTransport(serverConn)

	done := make(chan error, 1)
	go func() {
		done <- client.WriteMsg(Msg{Code: 5, Payload: []byte("payload")})
	}()

	msg, err := server.ReadMsg()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg.Code != 5 || string(msg.Payload) != "payload" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestFrameTransportEmptyPayload(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewFrameTransport(clientConn)
	server := NewFrameTransport(serverConn)

	done := make(chan error, 1)
	go func() { done <- client.WriteMsg(Msg{Code: 2}) }()

	msg, err := server.ReadMsg()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg.Code != 2 || len(msg.Payload) != 0 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
