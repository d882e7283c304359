package ssb

import (
	"testing"
	"time"

	"github.com/eth2030/netp2p/crypto"
)

func TestDialAcceptRunsRPCOverHandshakeAndBoxstream(t *testing.T) {
	var networkID [32]byte
	for i := range networkID {
		networkID[i] = 0x11
	}

	serverPub, serverPriv, err := crypto.GenerateEd25519Key()
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	clientPub, clientPriv, err := crypto.GenerateEd25519Key()
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}

	serverCfg := ServiceConfig{
		BindAddress: "127.0.0.1:0",
		Identity:    serverPub,
		PrivateKey:  serverPriv,
		NetworkID:   networkID,
	}
	ln, err := Listen(serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go ln.Serve(func(peer *Peer) {
		peer.RPC.SetIncomingHandler(func(call *Call) {
			frame, ok := call.Recv()
			if !ok {
				return
			}
			received <- string(frame.Body)
			_ = call.Send([]byte("ack"), BodyBinary, false, false)
		})
		peer.RPC.Run()
	})

	clientCfg := ServiceConfig{
		Identity:   clientPub,
		PrivateKey: clientPriv,
		NetworkID:  networkID,
	}
	peer, err := Dial(ln.Addr().String(), serverPub, clientCfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer peer.Close()
	go peer.RPC.Run()

	if string(peer.RemotePublicKey) != string(serverPub) {
		t.Fatalf("client did not observe server's public key")
	}

	call, err := peer.RPC.Call([]byte("hello"), BodyUTF8, false)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	select {
	case body := <-received:
		if body != "hello" {
			t.Fatalf("server saw unexpected body: %q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server to receive call")
	}

	type recvResult struct {
		frame Frame
		ok    bool
	}
	resultCh := make(chan recvResult, 1)
	go func() {
		frame, ok := call.Recv()
		resultCh <- recvResult{frame, ok}
	}()
	select {
	case res := <-resultCh:
		if !res.ok || string(res.frame.Body) != "ack" {
			t.Fatalf("unexpected ack response: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ack")
	}
}
