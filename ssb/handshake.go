// Package ssb implements the Secure Scuttlebutt session layer: the four-step
// mutual-authentication handshake, the boxstream duplex codec it produces,
// and the RPC multiplexer that runs on top.
package ssb

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/eth2030/netp2p/crypto"
)

// ErrHandshake covers any shape, MAC, signature, or decrypt failure
// encountered while running the four-message handshake. It is always fatal.
var ErrHandshake = errors.New("ssb: handshake failed")

const (
	helloSize    = 64
	identitySize = 112
	acceptSize   = 80
)

// Identity is a long-term Ed25519 keypair plus the network identifier both
// peers must share out of band.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	NetworkID  [32]byte
}

// Session holds the derived boxstream keys and initial nonces once a
// handshake completes. Both sides derive identical keys and nonces;
// RemotePublicKey holds the other side's long-term key.
type Session struct {
	C2SKey   [32]byte
	C2SNonce [24]byte
	S2CKey   [32]byte
	S2CNonce [24]byte

	RemotePublicKey ed25519.PublicKey
}

func hmacHello(networkID [32]byte, ephemeralPub [32]byte) []byte {
	return crypto.HMACSHA512256(networkID[:], ephemeralPub[:])
}

// ClientHandshake runs the initiator side of the handshake over conn and
// returns the resulting duplex session. conn is owned exclusively by the
// handshake until it returns.
func ClientHandshake(conn io.ReadWriter, id Identity, serverPub ed25519.PublicKey) (Session, error) {
	ephPub, ephPriv, err := crypto.GenerateX25519Key()
	if err != nil {
		return Session{}, fmt.Errorf("%w: generate ephemeral key: %v", ErrHandshake, err)
	}

	// Message 1: client hello.
	msg1 := make([]byte, helloSize)
	copy(msg1[:32], hmacHello(id.NetworkID, ephPub))
	copy(msg1[32:], ephPub[:])
	if _, err := conn.Write(msg1); err != nil {
		return Session{}, fmt.Errorf("%w: write client hello: %v", ErrHandshake, err)
	}

	// Message 2: server hello.
	msg2 := make([]byte, helloSize)
	if _, err := io.ReadFull(conn, msg2); err != nil {
		return Session{}, fmt.Errorf("%w: read server hello: %v", ErrHandshake, err)
	}
	var serverEphPub [32]byte
	copy(serverEphPub[:], msg2[32:])
	expectedMAC := hmacHello(id.NetworkID, serverEphPub)
	if !bytesEqual(expectedMAC, msg2[:32]) {
		return Session{}, fmt.Errorf("%w: bad-network", ErrHandshake)
	}

	serverLtX25519, err := crypto.Ed25519PublicKeyToX25519(serverPub)
	if err != nil {
		return Session{}, fmt.Errorf("%w: server long-term key conversion: %v", ErrHandshake, err)
	}

	ab, err := crypto.X25519(ephPriv, serverEphPub)
	if err != nil {
		return Session{}, fmt.Errorf("%w: compute ab: %v", ErrHandshake, err)
	}
	aB, err := crypto.X25519(ephPriv, serverLtX25519)
	if err != nil {
		return Session{}, fmt.Errorf("%w: compute aB: %v", ErrHandshake, err)
	}

	// Message 3: client identity, SecretBox(key=sha256(network_id||ab||aB), nonce=0).
	identityKey := sha256Sum(concat(id.NetworkID[:], ab, aB))
	abHash := sha256Sum(ab)
	sigMsg := concat(id.NetworkID[:], serverPub, abHash)
	clientSig := crypto.Ed25519Sign(id.PrivateKey, sigMsg)
	plain := concat(clientSig, id.PublicKey)
	var zeroNonce [24]byte
	sealed := crypto.SecretBoxSeal(plain, &zeroNonce, &identityKey)
	if len(sealed) != identitySize {
		return Session{}, fmt.Errorf("%w: unexpected identity message length %d", ErrHandshake, len(sealed))
	}
	if _, err := conn.Write(sealed); err != nil {
		return Session{}, fmt.Errorf("%w: write client identity: %v", ErrHandshake, err)
	}

	// Message 4: server accept, SecretBox(key=sha256(network_id||ab||aB||Ab), nonce=0).
	// Ab = curve25519(client_lt_priv_as_x25519, server_eph_pub), the mirror of
	// the server's curve25519(server_eph_priv, client_lt_pub_as_x25519).
	clientLtXPriv, err := crypto.Ed25519PrivateKeyToX25519(id.PrivateKey)
	if err != nil {
		return Session{}, fmt.Errorf("%w: own long-term key conversion: %v", ErrHandshake, err)
	}
	Ab, err := crypto.X25519(clientLtXPriv, serverEphPub)
	if err != nil {
		return Session{}, fmt.Errorf("%w: compute Ab: %v", ErrHandshake, err)
	}

	acceptKey := sha256Sum(concat(id.NetworkID[:], ab, aB, Ab))
	msg4 := make([]byte, acceptSize)
	if _, err := io.ReadFull(conn, msg4); err != nil {
		return Session{}, fmt.Errorf("%w: read server accept: %v", ErrHandshake, err)
	}
	acceptPlain, ok := crypto.SecretBoxOpen(msg4, &zeroNonce, &acceptKey)
	if !ok {
		return Session{}, fmt.Errorf("%w: server accept decrypt failed", ErrHandshake)
	}
	serverSig := acceptPlain
	expectedSigMsg := concat(id.NetworkID[:], clientSig, id.PublicKey, abHash)
	if !crypto.Ed25519Verify(serverPub, expectedSigMsg, serverSig) {
		return Session{}, fmt.Errorf("%w: server accept signature invalid", ErrHandshake)
	}

	return deriveSession(id.NetworkID, ab, aB, Ab, id.PublicKey, serverPub, serverEphPub, serverPub)
}

// ServerHandshake runs the responder side of the handshake over conn.
func ServerHandshake(conn io.ReadWriter, id Identity) (Session, error) {
	ephPub, ephPriv, err := crypto.GenerateX25519Key()
	if err != nil {
		return Session{}, fmt.Errorf("%w: generate ephemeral key: %v", ErrHandshake, err)
	}

	// Message 1: client hello.
	msg1 := make([]byte, helloSize)
	if _, err := io.ReadFull(conn, msg1); err != nil {
		return Session{}, fmt.Errorf("%w: read client hello: %v", ErrHandshake, err)
	}
	var clientEphPub [32]byte
	copy(clientEphPub[:], msg1[32:])
	expectedMAC := hmacHello(id.NetworkID, clientEphPub)
	if !bytesEqual(expectedMAC, msg1[:32]) {
		return Session{}, fmt.Errorf("%w: bad-network", ErrHandshake)
	}

	// Message 2: server hello.
	msg2 := make([]byte, helloSize)
	copy(msg2[:32], hmacHello(id.NetworkID, ephPub))
	copy(msg2[32:], ephPub[:])
	if _, err := conn.Write(msg2); err != nil {
		return Session{}, fmt.Errorf("%w: write server hello: %v", ErrHandshake, err)
	}

	ab, err := crypto.X25519(ephPriv, clientEphPub)
	if err != nil {
		return Session{}, fmt.Errorf("%w: compute ab: %v", ErrHandshake, err)
	}

	// aB is computed by the server as curve25519(server's own long-term
	// private key viewed as x25519, client_ephemeral_pub); it must equal the
	// client's curve25519(client_eph_priv, server_lt_pub_as_x25519).
	serverLtXPriv, err := crypto.Ed25519PrivateKeyToX25519(id.PrivateKey)
	if err != nil {
		return Session{}, fmt.Errorf("%w: own long-term key conversion: %v", ErrHandshake, err)
	}
	aB, err := crypto.X25519(serverLtXPriv, clientEphPub)
	if err != nil {
		return Session{}, fmt.Errorf("%w: compute aB: %v", ErrHandshake, err)
	}

	// Message 3: client identity.
	identityKey := sha256Sum(concat(id.NetworkID[:], ab, aB))
	msg3 := make([]byte, identitySize)
	if _, err := io.ReadFull(conn, msg3); err != nil {
		return Session{}, fmt.Errorf("%w: read client identity: %v", ErrHandshake, err)
	}
	var zeroNonce [24]byte
	identityPlain, ok := crypto.SecretBoxOpen(msg3, &zeroNonce, &identityKey)
	if !ok {
		return Session{}, fmt.Errorf("%w: client identity decrypt failed", ErrHandshake)
	}
	if len(identityPlain) != ed25519.SignatureSize+ed25519.PublicKeySize {
		return Session{}, fmt.Errorf("%w: malformed client identity payload", ErrHandshake)
	}
	clientSig := identityPlain[:ed25519.SignatureSize]
	clientPub := ed25519.PublicKey(identityPlain[ed25519.SignatureSize:])

	abHash := sha256Sum(ab)
	sigMsg := concat(id.NetworkID[:], id.PublicKey, abHash)
	if !crypto.Ed25519Verify(clientPub, sigMsg, clientSig) {
		return Session{}, fmt.Errorf("%w: client identity signature invalid", ErrHandshake)
	}

	// Ab = curve25519(server_eph_priv, client_lt_pub_as_x25519).
	clientLtX25519, err := crypto.Ed25519PublicKeyToX25519(clientPub)
	if err != nil {
		return Session{}, fmt.Errorf("%w: client long-term key conversion: %v", ErrHandshake, err)
	}
	Ab, err := crypto.X25519(ephPriv, clientLtX25519)
	if err != nil {
		return Session{}, fmt.Errorf("%w: compute Ab: %v", ErrHandshake, err)
	}

	// Message 4: server accept.
	acceptKey := sha256Sum(concat(id.NetworkID[:], ab, aB, Ab))
	serverSigMsg := concat(id.NetworkID[:], clientSig, clientPub, abHash)
	serverSig := crypto.Ed25519Sign(id.PrivateKey, serverSigMsg)
	sealed := crypto.SecretBoxSeal(serverSig, &zeroNonce, &acceptKey)
	if len(sealed) != acceptSize {
		return Session{}, fmt.Errorf("%w: unexpected accept message length %d", ErrHandshake, len(sealed))
	}
	if _, err := conn.Write(sealed); err != nil {
		return Session{}, fmt.Errorf("%w: write server accept: %v", ErrHandshake, err)
	}

	return deriveSession(id.NetworkID, ab, aB, Ab, clientPub, id.PublicKey, ephPub, clientPub)
}

// deriveSession computes the shared boxstream keys and initial nonces from
// the handshake's three ECDH outputs, identical on both sides.
func deriveSession(networkID [32]byte, ab, aB, Ab []byte, clientPub, serverPub ed25519.PublicKey, serverEphPub [32]byte, remotePub ed25519.PublicKey) (Session, error) {
	base := sha256Sum(sha256Sum(concat(networkID[:], ab, aB, Ab))[:])
	var s Session
	s.C2SKey = sha256Sum(concat(base[:], serverPub))
	s.S2CKey = sha256Sum(concat(base[:], clientPub))

	c2sNonce := crypto.HMACSHA512256(networkID[:], serverEphPub[:])
	copy(s.C2SNonce[:], c2sNonce[:24])
	s2cNonce := crypto.HMACSHA512256(networkID[:], clientPub)
	copy(s.S2CNonce[:], s2cNonce[:24])

	s.RemotePublicKey = remotePub
	return s, nil
}

func sha256Sum(b []byte) [32]byte {
	return sha256.Sum256(b)
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
