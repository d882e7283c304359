package node

import (
	"crypto/ed25519"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/eth2030/netp2p/config"
	"github.com/eth2030/netp2p/kvstore"
	"github.com/eth2030/netp2p/p2p"
	"github.com/eth2030/netp2p/p2p/enode"
	"github.com/eth2030/netp2p/ssb"
)

// rlpxService adapts a p2p.Server to the Service interface so the registry
// can start/stop it alongside the SSB service.
type rlpxService struct {
	cfg    *p2p.Config
	addr   string
	server *p2p.Server
}

func (s *rlpxService) Name() string { return "rlpx" }

func (s *rlpxService) Start() error {
	s.server = p2p.NewServer(s.cfg, enode.NewBook())
	return s.server.Listen(s.addr)
}

func (s *rlpxService) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// ssbService adapts an ssb.Listener to the Service interface.
type ssbService struct {
	cfg      ssb.ServiceConfig
	onPeer   func(*ssb.Peer)
	listener *ssb.Listener
	wg       sync.WaitGroup
}

func (s *ssbService) Name() string { return "ssb" }

func (s *ssbService) Start() error {
	ln, err := ssb.Listen(s.cfg)
	if err != nil {
		return err
	}
	s.listener = ln
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.listener.Serve(s.onPeer); err != nil {
			log.Printf("ssb: listener closed: %v", err)
		}
	}()
	return nil
}

func (s *ssbService) Stop() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// Node wires the RLPx and SSB services into one process using the
// lifecycle/registry machinery in this package, and owns the local
// key-value store exposed through Store; neither service reads or writes it.
type Node struct {
	cfg      *config.Config
	registry *ServiceRegistry
	health   *HealthChecker
	events   *EventBus
	store    *kvstore.Store

	rlpx *rlpxService
	ssb  *ssbService

	mu      sync.Mutex
	running bool
}

// New creates a Node from a loaded configuration. It opens the node's
// key-value store and builds the RLPx and SSB services, but starts neither
// until Start is called.
func New(cfg *config.Config) (*Node, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("node: invalid config: %w", err)
	}
	if err := InitDataDir(cfg); err != nil {
		return nil, err
	}

	store, err := kvstore.Open(ResolvePath(cfg, "kvstore"))
	if err != nil {
		return nil, fmt.Errorf("node: open kvstore: %w", err)
	}

	rlpxPriv, err := cfg.RLPx.PrivateKey()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: rlpx identity: %w", err)
	}
	subProtos := make([]p2p.SubProtocol, len(cfg.RLPx.SubProtocols))
	for i, sp := range cfg.RLPx.SubProtocols {
		subProtos[i] = p2p.SubProtocol{Name: sp.Name, Version: sp.Version, Length: sp.Length}
	}

	ssbPriv, err := cfg.SSB.PrivateKey()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: ssb identity: %w", err)
	}
	ssbPub, ok := ssbPriv.Public().(ed25519.PublicKey)
	if !ok {
		store.Close()
		return nil, fmt.Errorf("node: ssb identity: unexpected public key type")
	}
	networkID, err := cfg.SSB.NetworkID()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: ssb network id: %w", err)
	}

	n := &Node{
		cfg:      cfg,
		registry: NewServiceRegistry(0),
		health:   NewHealthChecker(),
		events:   NewEventBus(64),
		store:    store,
		rlpx: &rlpxService{
			cfg: &p2p.Config{
				PrivateKey: rlpxPriv,
				ClientID:   cfg.RLPx.ClientID,
				ListenPort: uint64(cfg.RLPx.ListenPort),
				SubProtos:  subProtos,
				Handlers:   map[string]p2p.PeerHandler{},
				MaxPeers:   64,
			},
			addr: net.JoinHostPort(cfg.RLPx.BindAddress, strconv.Itoa(int(cfg.RLPx.ListenPort))),
		},
		ssb: &ssbService{
			cfg: ssb.ServiceConfig{
				BindAddress: cfg.SSB.BindAddress,
				Identity:    ssbPub,
				PrivateKey:  ssbPriv,
				NetworkID:   networkID,
			},
			onPeer: func(p *ssb.Peer) {
				log.Printf("ssb: peer connected %x", p.RemotePublicKey)
				if err := p.RPC.Run(); err != nil {
					log.Printf("ssb: peer %x disconnected: %v", p.RemotePublicKey, err)
				}
			},
		},
	}

	if err := n.registry.Register(&ServiceDescriptor{Name: "rlpx", Service: n.rlpx, Priority: 0}); err != nil {
		store.Close()
		return nil, err
	}
	if err := n.registry.Register(&ServiceDescriptor{Name: "ssb", Service: n.ssb, Priority: 1}); err != nil {
		store.Close()
		return nil, err
	}

	return n, nil
}

// Start starts the RLPx and SSB services in priority order (RLPx first). If
// any service fails to start, already-started services are stopped and an
// error listing every start failure is returned.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("node: already running")
	}

	log.Printf("node: starting (rlpx=%s ssb=%s)", n.cfg.RLPx.BindAddress, n.cfg.SSB.BindAddress)
	if errs := n.registry.Start(); len(errs) > 0 {
		n.registry.Stop()
		return fmt.Errorf("node: start failed: %v", errs)
	}
	n.running = true
	n.events.Publish(EventNodeStarted, nil)
	return nil
}

// Stop stops both services in reverse start order and closes the
// key-value store.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	log.Println("node: stopping")
	errs := n.registry.Stop()
	if err := n.store.Close(); err != nil {
		errs = append(errs, err)
	}
	n.running = false
	n.events.Publish(EventNodeStopped, nil)
	n.events.Close()

	if len(errs) > 0 {
		return fmt.Errorf("node: stop errors: %v", errs)
	}
	return nil
}

// Running reports whether the node's services are currently started.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config { return n.cfg }

// Store returns the node's key-value store.
func (n *Node) Store() *kvstore.Store { return n.store }

// Health returns the node's health checker, allowing callers to register
// additional subsystem checks before Start.
func (n *Node) Health() *HealthChecker { return n.health }

// Events returns the node's event bus.
func (n *Node) Events() *EventBus { return n.events }
