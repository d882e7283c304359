package p2p

import "testing"

func TestMsgPipeRoundTrip(t *testing.T) {
	a, b := MsgPipe()
	defer a.Close()
	defer b.Close()

	if err := a.WriteMsg(Msg{Code: 7, Payload: []byte("ping")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg, err := b.ReadMsg()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Code != 7 || string(msg.Payload) != "ping" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMsgPipeCloseUnblocksRead(t *testing.T) {
	a, b := MsgPipe()
	a.Close()
	if _, err := b.ReadMsg(); err == nil {
		t.Fatalf("expected error reading from closed pipe")
	}
}

func TestSendHelper(t *testing.T) {
	a, b := MsgPipe()
	defer a.Close()
	defer b.Close()

	if err := Send(a, 3, []byte{1, 2, 3}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, err := b.ReadMsg()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Code != 3 || len(msg.Payload) != 3 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
