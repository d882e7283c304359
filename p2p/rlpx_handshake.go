package p2p

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/eth2030/netp2p/crypto"
	"github.com/eth2030/netp2p/rlp"
)

// randomBytes fills buf with CSPRNG output.
func randomBytes(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// handshakeVersion is the RLPx protocol version advertised in both
// handshake messages.
const handshakeVersion = 4

var (
	// ErrHandshakeFormat is returned when a decrypted handshake payload
	// does not decode to the expected RLP list shape.
	ErrHandshakeFormat = errors.New("p2p: malformed handshake payload")

	// ErrInvalidMAC is returned when an ECIES or frame MAC check fails.
	ErrInvalidMAC = errors.New("p2p: invalid MAC")
)

// sessionSecrets holds the keys and mutable MAC sponges derived from a
// completed RLPx handshake. Both ends of a connection compute identical
// aesSecret/macSecret; egress and ingress are swapped between initiator and
// responder.
type sessionSecrets struct {
	RemotePub  *ecdsa.PublicKey
	AESSecret  []byte
	MACSecret  []byte
	EgressMAC  crypto.KeccakState
	IngressMAC crypto.KeccakState
}

// initiatorHandshake runs the dialing side of the RLPx auth handshake on
// conn and returns the derived session secrets.
func initiatorHandshake(conn io.ReadWriter, local *ecdsa.PrivateKey, remotePub *ecdsa.PublicKey) (sessionSecrets, error) {
	initNonce := make([]byte, 32)
	if err := randomBytes(initNonce); err != nil {
		return sessionSecrets{}, err
	}
	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return sessionSecrets{}, err
	}

	sharedSecret, err := crypto.GenerateSharedSecret(local, remotePub)
	if err != nil {
		return sessionSecrets{}, err
	}
	signed := xorBytes(sharedSecret, initNonce)
	sig, err := crypto.Sign(signed, ephemeral)
	if err != nil {
		return sessionSecrets{}, err
	}

	ephemeralPub := crypto.FromECDSAPub(&ephemeral.PublicKey)[1:]
	localPub := crypto.FromECDSAPub(&local.PublicKey)[1:]

	inner := rlp.NewWriter()
	inner.WriteBytes(sig)
	inner.WriteBytes(crypto.Keccak256(ephemeralPub))
	inner.WriteBytes(localPub)
	inner.WriteBytes(initNonce)
	inner.WriteUint(handshakeVersion)
	w := rlp.NewWriter()
	w.WriteList(inner.Bytes())

	auth, err := crypto.ECIESEncrypt(remotePub, w.Bytes(), nil, nil)
	if err != nil {
		return sessionSecrets{}, err
	}
	if err := writeHandshakeMsg(conn, auth); err != nil {
		return sessionSecrets{}, err
	}

	ackCipher, err := readHandshakeMsg(conn)
	if err != nil {
		return sessionSecrets{}, err
	}
	ackPlain, err := crypto.ECIESDecrypt(local, ackCipher, nil, nil)
	if err != nil {
		return sessionSecrets{}, fmt.Errorf("%w: %v", ErrInvalidMAC, err)
	}
	remoteEphemeralPub, respNonce, err := decodeResponderMsg(ackPlain)
	if err != nil {
		return sessionSecrets{}, err
	}

	ephemeralShared, err := crypto.GenerateSharedSecret(ephemeral, remoteEphemeralPub)
	if err != nil {
		return sessionSecrets{}, err
	}
	return deriveSecrets(ephemeralShared, respNonce, initNonce, auth, ackCipher, true, remotePub)
}

// responderHandshake runs the listening side of the RLPx auth handshake on
// conn and returns the derived session secrets.
func responderHandshake(conn io.ReadWriter, local *ecdsa.PrivateKey) (sessionSecrets, error) {
	authCipher, err := readHandshakeMsg(conn)
	if err != nil {
		return sessionSecrets{}, err
	}
	authPlain, err := crypto.ECIESDecrypt(local, authCipher, nil, nil)
	if err != nil {
		return sessionSecrets{}, fmt.Errorf("%w: %v", ErrInvalidMAC, err)
	}
	sig, ephemeralPubHash, remotePub, initNonce, err := decodeInitiatorMsg(authPlain)
	if err != nil {
		return sessionSecrets{}, err
	}

	sharedSecret, err := crypto.GenerateSharedSecret(local, remotePub)
	if err != nil {
		return sessionSecrets{}, err
	}
	signed := xorBytes(sharedSecret, initNonce)
	remoteEphemeralPub, err := crypto.SigToPub(signed, sig)
	if err != nil {
		return sessionSecrets{}, fmt.Errorf("p2p: signature recovery failed: %w", err)
	}
	remoteEphemeralPubBytes := crypto.FromECDSAPub(remoteEphemeralPub)[1:]
	if !bytesEqual(crypto.Keccak256(remoteEphemeralPubBytes), ephemeralPubHash) {
		return sessionSecrets{}, ErrHandshakeFormat
	}

	respNonce := make([]byte, 32)
	if err := randomBytes(respNonce); err != nil {
		return sessionSecrets{}, err
	}
	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return sessionSecrets{}, err
	}

	inner := rlp.NewWriter()
	inner.WriteBytes(crypto.FromECDSAPub(&ephemeral.PublicKey)[1:])
	inner.WriteBytes(respNonce)
	inner.WriteUint(handshakeVersion)
	w := rlp.NewWriter()
	w.WriteList(inner.Bytes())
	ack, err := crypto.ECIESEncrypt(remotePub, w.Bytes(), nil, nil)
	if err != nil {
		return sessionSecrets{}, err
	}
	if err := writeHandshakeMsg(conn, ack); err != nil {
		return sessionSecrets{}, err
	}

	ephemeralShared, err := crypto.GenerateSharedSecret(ephemeral, remoteEphemeralPub)
	if err != nil {
		return sessionSecrets{}, err
	}
	return deriveSecrets(ephemeralShared, respNonce, initNonce, authCipher, ack, false, remotePub)
}

// deriveSecrets computes aes_secret, mac_secret, and the egress/ingress
// Keccak-256 MAC sponges from the ephemeral ECDH secret and both nonces, per
// the RLPx key schedule. initiator selects which ciphertext seeds egress vs
// ingress.
func deriveSecrets(ephemeralShared, respNonce, initNonce, authCiphertext, ackCiphertext []byte, initiator bool, remotePub *ecdsa.PublicKey) (sessionSecrets, error) {
	sharedSecret := crypto.Keccak256(ephemeralShared, crypto.Keccak256(respNonce, initNonce))
	aesSecret := crypto.Keccak256(ephemeralShared, sharedSecret)
	macSecret := crypto.Keccak256(ephemeralShared, aesSecret)

	mac1 := crypto.NewKeccakState()
	mac1.Write(xorBytes(macSecret, respNonce))
	mac1.Write(authCiphertext)

	mac2 := crypto.NewKeccakState()
	mac2.Write(xorBytes(macSecret, initNonce))
	mac2.Write(ackCiphertext)

	s := sessionSecrets{
		RemotePub: remotePub,
		AESSecret: aesSecret,
		MACSecret: macSecret,
	}
	if initiator {
		s.EgressMAC, s.IngressMAC = mac1, mac2
	} else {
		s.EgressMAC, s.IngressMAC = mac2, mac1
	}
	return s, nil
}

func decodeInitiatorMsg(plain []byte) (sig, ephemeralPubHash []byte, remotePub *ecdsa.PublicKey, nonce []byte, err error) {
	r := rlp.NewReader(plain)
	fields := make([][]byte, 0, 4)
	var version uint64
	listErr := r.ReadList(func(inner *rlp.Reader) error {
		for i := 0; i < 4; i++ {
			b, err := inner.ReadBytes()
			if err != nil {
				return err
			}
			fields = append(fields, b)
		}
		v, err := inner.ReadUint()
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if listErr != nil || len(fields) != 4 {
		return nil, nil, nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFormat, listErr)
	}
	_ = version
	sig = fields[0]
	ephemeralPubHash = fields[1]
	pub, err := crypto.UnmarshalPubkey(append([]byte{0x04}, fields[2]...))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: bad local_pub: %v", ErrHandshakeFormat, err)
	}
	remotePub = pub
	nonce = fields[3]
	if len(sig) != 65 || len(nonce) != 32 {
		return nil, nil, nil, nil, ErrHandshakeFormat
	}
	return sig, ephemeralPubHash, remotePub, nonce, nil
}

func decodeResponderMsg(plain []byte) (pub *ecdsa.PublicKey, nonce []byte, err error) {
	r := rlp.NewReader(plain)
	var ephemeralPub []byte
	listErr := r.ReadList(func(inner *rlp.Reader) error {
		b, err := inner.ReadBytes()
		if err != nil {
			return err
		}
		ephemeralPub = b
		n, err := inner.ReadBytes()
		if err != nil {
			return err
		}
		nonce = n
		if _, err := inner.ReadUint(); err != nil {
			return err
		}
		return nil
	})
	if listErr != nil || len(ephemeralPub) != 64 || len(nonce) != 32 {
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFormat, listErr)
	}
	pub, err = crypto.UnmarshalPubkey(append([]byte{0x04}, ephemeralPub...))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad ephemeral pub: %v", ErrHandshakeFormat, err)
	}
	return pub, nonce, nil
}

// writeHandshakeMsg writes a 2-byte big-endian length prefix followed by
// the ECIES-encrypted payload.
func writeHandshakeMsg(conn io.Writer, payload []byte) error {
	var lenPrefix [2]byte
	lenPrefix[0] = byte(len(payload) >> 8)
	lenPrefix[1] = byte(len(payload))
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

// readHandshakeMsg reads a length-prefixed ECIES-encrypted payload.
func readHandshakeMsg(conn io.Reader) ([]byte, error) {
	var lenPrefix [2]byte
	if _, err := io.ReadFull(conn, lenPrefix[:]); err != nil {
		return nil, err
	}
	size := int(lenPrefix[0])<<8 | int(lenPrefix[1])
	buf := make([]byte, size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
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
