package bus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"vela/config"
)

// requestTimeout bounds every blocking request-response exchange. On
// expiry the call reports failure and the handler carries on.
const requestTimeout = 10 * time.Second

// PeerInfo is a registry listing entry.
type PeerInfo struct {
	Addr        string
	Type        config.NodeType
	Established bool
}

// peer is one live connection. The registry key starts as the transport
// address (remote addr for accepted links, dialed addr for outbound
// ones) and is rebound to the canonical declared address when the join
// handshake succeeds.
type peer struct {
	conn net.Conn
	wmu  sync.Mutex

	// Guarded by Bus.mu.
	addr        string
	ntype       config.NodeType
	established bool
}

// Bus is the cluster message transport: a TCP listener plus a table of
// live peer links, with request-response correlation on top.
type Bus struct {
	self config.NodeDefinition
	lis  net.Listener

	mu    sync.RWMutex
	peers map[string]*peer

	pmu     sync.Mutex
	pending map[uint32]chan *Message

	nextID  atomic.Uint32
	closed  atomic.Bool
	timeout time.Duration

	// OnRequest is invoked on its own goroutine for every unsolicited
	// inbound message, so handlers are free to block on nested
	// exchanges. OnConnectionLost fires after a link's registry entry
	// is removed; the type is TypeUnknown when the peer never finished
	// its handshake.
	OnRequest        func(m *Message)
	OnConnectionLost func(addr string, ntype config.NodeType)
}

func New(self config.NodeDefinition) *Bus {
	return &Bus{
		self:    self,
		peers:   make(map[string]*peer),
		pending: make(map[uint32]chan *Message),
		timeout: requestTimeout,
	}
}

// nextMessageID allocates the next process-wide message id. Zero is
// reserved for "no response", so the counter re-increments across the
// wrap.
func (b *Bus) nextMessageID() uint32 {
	for {
		if id := b.nextID.Add(1); id != 0 {
			return id
		}
	}
}

// Listen binds the bus listener. Port 0 picks an ephemeral port; Addr
// reports the bound address.
func (b *Bus) Listen(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("couldn't start bus listener on port %d: %w", port, err)
	}
	b.lis = lis
	return nil
}

func (b *Bus) Addr() net.Addr {
	if b.lis == nil {
		return nil
	}
	return b.lis.Addr()
}

// Serve accepts inbound links until the bus is closed.
func (b *Bus) Serve() {
	for {
		conn, err := b.lis.Accept()
		if err != nil {
			if b.closed.Load() {
				return
			}
			log.Printf("[WARN] Couldn't accept connection: %s", err.Error())
			continue
		}
		p := b.addPeer(conn.RemoteAddr().String(), conn)
		if p == nil {
			conn.Close()
			continue
		}
		go b.readLoop(p)
	}
}

// Dial opens an outbound link registered under the canonical target
// address. An existing entry is reused.
func (b *Bus) Dial(addr string) error {
	b.mu.RLock()
	_, exists := b.peers[addr]
	b.mu.RUnlock()
	if exists {
		return nil
	}

	conn, err := net.DialTimeout("tcp", addr, b.timeout)
	if err != nil {
		return fmt.Errorf("couldn't connect to %s: %w", addr, err)
	}
	p := b.addPeer(addr, conn)
	if p == nil {
		// Lost the race with a concurrent dial; the existing link wins.
		conn.Close()
		return nil
	}
	go b.readLoop(p)
	return nil
}

func (b *Bus) addPeer(addr string, conn net.Conn) *peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.peers[addr]; exists {
		return nil
	}
	p := &peer{conn: conn, addr: addr}
	b.peers[addr] = p
	return p
}

func (b *Bus) readLoop(p *peer) {
	reader := bufio.NewReader(p.conn)
	for {
		m, err := readFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !b.closed.Load() {
				log.Printf("[WARN] Reading err on link %s: %s", b.peerAddr(p), err.Error())
			}
			break
		}

		if m.InResponseTo != 0 {
			b.deliverResponse(m)
			continue
		}

		m.From = b.peerAddr(p)
		if b.OnRequest != nil {
			go b.OnRequest(m)
		}
	}
	b.dropPeer(p)
}

func (b *Bus) peerAddr(p *peer) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return p.addr
}

func (b *Bus) deliverResponse(m *Message) {
	b.pmu.Lock()
	ch, ok := b.pending[m.InResponseTo]
	if ok {
		delete(b.pending, m.InResponseTo)
	}
	b.pmu.Unlock()
	if !ok {
		// Late response after timeout; nothing waits for it anymore.
		return
	}
	ch <- m
}

func (b *Bus) dropPeer(p *peer) {
	b.mu.Lock()
	addr := p.addr
	ntype := p.ntype
	if !p.established {
		ntype = config.TypeUnknown
	}
	registered := b.peers[addr] == p
	if registered {
		delete(b.peers, addr)
	}
	b.mu.Unlock()

	p.conn.Close()
	if registered && !b.closed.Load() && b.OnConnectionLost != nil {
		b.OnConnectionLost(addr, ntype)
	}
}

// Has reports whether the registry currently tracks addr.
func (b *Bus) Has(addr string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.peers[addr]
	return ok
}

// HasTyped reports whether addr is tracked, established and of the given
// type.
func (b *Bus) HasTyped(addr string, ntype config.NodeType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.peers[addr]
	return ok && p.established && p.ntype == ntype
}

// MarkEstablished classifies a peer after its join handshake succeeded.
func (b *Bus) MarkEstablished(addr string, ntype config.NodeType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.peers[addr]; ok {
		p.ntype = ntype
		p.established = true
	}
}

// Rename rebinds a registry entry from its transport-level address to
// the canonical address the peer declared while joining. When the
// canonical key is already taken the existing entry wins: the newcomer
// is dropped and its link closed.
func (b *Bus) Rename(oldAddr, newAddr string) bool {
	if oldAddr == newAddr {
		return true
	}

	b.mu.Lock()
	p, ok := b.peers[oldAddr]
	if !ok {
		b.mu.Unlock()
		return false
	}
	if _, taken := b.peers[newAddr]; taken {
		delete(b.peers, oldAddr)
		b.mu.Unlock()
		log.Printf("[WARN] Duplicate join for %s, keeping the established link and dropping the new one", newAddr)
		p.conn.Close()
		return false
	}
	delete(b.peers, oldAddr)
	p.addr = newAddr
	b.peers[newAddr] = p
	b.mu.Unlock()
	return true
}

// ClosePeer drops a link by registry key.
func (b *Bus) ClosePeer(addr string) {
	b.mu.RLock()
	p, ok := b.peers[addr]
	b.mu.RUnlock()
	if ok {
		p.conn.Close()
	}
}

// Peers lists the registry.
func (b *Bus) Peers() []PeerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]PeerInfo, 0, len(b.peers))
	for addr, p := range b.peers {
		out = append(out, PeerInfo{Addr: addr, Type: p.ntype, Established: p.established})
	}
	return out
}

// PeersOfType lists established peers of one type.
func (b *Bus) PeersOfType(ntype config.NodeType) []PeerInfo {
	var out []PeerInfo
	for _, p := range b.Peers() {
		if p.Established && p.Type == ntype {
			out = append(out, p)
		}
	}
	return out
}

// Call is a posted request whose response may be awaited.
type Call struct {
	ID  uint32
	bus *Bus
	ch  chan *Message
}

// BlockUntilDone suspends until the matching response arrives or the
// transport timeout expires. ok is false on timeout.
func (c *Call) BlockUntilDone() (*Message, bool) {
	select {
	case m := <-c.ch:
		return m, true
	case <-time.After(c.bus.timeout):
		c.bus.pmu.Lock()
		delete(c.bus.pending, c.ID)
		c.bus.pmu.Unlock()
		// A response racing the timeout may already be in flight.
		select {
		case m := <-c.ch:
			return m, true
		default:
		}
		return nil, false
	}
}

// SendMessage posts a new message to the peer registered under addr.
// With waitingForResponse set the returned call can be blocked on.
func (b *Bus) SendMessage(addr string, payload Payload, waitingForResponse bool) (*Call, error) {
	return b.send(addr, payload, 0, waitingForResponse)
}

// SendReply posts a response correlated to the given request.
func (b *Bus) SendReply(req *Message, payload Payload, waitingForResponse bool) (*Call, error) {
	return b.send(req.From, payload, req.ID, waitingForResponse)
}

func (b *Bus) send(addr string, payload Payload, inResponseTo uint32, waitingForResponse bool) (*Call, error) {
	b.mu.RLock()
	p, ok := b.peers[addr]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no peer registered for %s", addr)
	}

	m := &Message{
		ID:                 b.nextMessageID(),
		InResponseTo:       inResponseTo,
		WaitingForResponse: waitingForResponse,
		Payload:            payload,
	}

	var call *Call
	if waitingForResponse {
		call = &Call{ID: m.ID, bus: b, ch: make(chan *Message, 1)}
		b.pmu.Lock()
		b.pending[m.ID] = call.ch
		b.pmu.Unlock()
	}

	p.wmu.Lock()
	err := writeFrame(p.conn, m)
	p.wmu.Unlock()
	if err != nil {
		if call != nil {
			b.pmu.Lock()
			delete(b.pending, m.ID)
			b.pmu.Unlock()
		}
		p.conn.Close()
		return nil, fmt.Errorf("couldn't write to peer %s: %w", addr, err)
	}
	return call, nil
}

// Request posts a waiting message and blocks for its response in one
// step.
func (b *Bus) Request(addr string, payload Payload) (*Message, bool) {
	call, err := b.SendMessage(addr, payload, true)
	if err != nil {
		return nil, false
	}
	return call.BlockUntilDone()
}

// Close tears the bus down: listener first, then every link.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	if b.lis != nil {
		b.lis.Close()
	}
	b.mu.Lock()
	peers := make([]*peer, 0, len(b.peers))
	for _, p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.Unlock()
	for _, p := range peers {
		p.conn.Close()
	}
}
