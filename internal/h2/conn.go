package h2

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fastrand"

	"github.com/domsolutions/grpccore/internal/frame"
	"github.com/domsolutions/grpccore/internal/headerwire"
	"github.com/domsolutions/grpccore/internal/hpack"
	"github.com/domsolutions/grpccore/internal/spi"
)

// Conn implements spi.Connection and (server-side) spi.StreamAcceptor over
// one net.Conn. Grounded on the teacher's Conn (conn.go): one HPACK
// encoder/decoder pair per connection, a next-stream-id counter, and a
// stream-id→*stream map, generalized with connection/stream flow-control
// windows and a read loop that demultiplexes frames instead of blocking
// the whole connection on one stream (spec §5).
type Conn struct {
	nc       net.Conn
	br       *bufio.Reader
	bw       *bufio.Writer
	writeMu  sync.Mutex
	isClient bool

	enc *hpack.Encoder
	dec *hpack.Decoder

	local Settings
	peer  Settings

	nextStreamID uint32 // atomic

	streamsMu sync.RWMutex
	streams   map[uint32]*stream

	connSendWindow int32 // atomic
	connRecvWindow int32 // atomic
	windowMu       sync.Mutex
	windowCond     *sync.Cond

	acceptCh chan *stream

	closed   atomic.Bool
	closeErr atomic.Value // error

	goAwaySent     atomic.Bool
	goAwayReceived atomic.Bool
	lastStreamID   uint32 // atomic, last-stream-id carried by the peer's GOAWAY

	pingMu      sync.Mutex
	pingPending map[[pingPayloadLen]byte]chan struct{}

	onRTT func(time.Duration)

	readLoopDone chan struct{}
}

// newConn wraps nc and performs the preface/SETTINGS handshake of spec
// §4.3. For a client connection isClient is true and the preface is sent;
// for a server connection the preface is read and validated first.
func newConn(nc net.Conn, isClient bool, maxConcurrentStreams uint32) (*Conn, error) {
	c := &Conn{
		nc:             nc,
		br:             bufio.NewReaderSize(nc, 64<<10),
		bw:             bufio.NewWriterSize(nc, 64<<10),
		isClient:       isClient,
		enc:            hpack.NewEncoder(),
		dec:            hpack.NewDecoder(),
		local:          defaultSettings(),
		peer:           defaultSettings(),
		streams:        make(map[uint32]*stream),
		connSendWindow: DefaultInitialWindowSize,
		connRecvWindow: DefaultInitialWindowSize,
		acceptCh:       make(chan *stream, 64),
		pingPending:    make(map[[pingPayloadLen]byte]chan struct{}),
		readLoopDone:   make(chan struct{}),
	}
	c.windowCond = sync.NewCond(&c.windowMu)
	if maxConcurrentStreams > 0 {
		c.local.MaxConcurrentStreams = maxConcurrentStreams
	}
	if isClient {
		c.nextStreamID = 1
	} else {
		c.nextStreamID = 2
	}

	if err := c.handshake(); err != nil {
		nc.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Conn) handshake() error {
	if c.isClient {
		if _, err := c.nc.Write([]byte(ClientPreface)); err != nil {
			return err
		}
	} else {
		preface := make([]byte, len(ClientPreface))
		if _, err := readFull(c.br, preface); err != nil {
			return err
		}
		if string(preface) != ClientPreface {
			return fmt.Errorf("h2: %w", errBadPreface)
		}
	}

	// Both sides send SETTINGS immediately after the preface (spec §4.3).
	if err := c.writeSettingsFrame(c.local, false); err != nil {
		return err
	}

	// The first frame from the peer MUST be SETTINGS (RFC 7540 §3.5); the
	// stricter rule from Design Notes' Open Question, rather than the
	// teacher's "read exactly one frame and assume it's SETTINGS".
	fh, err := readFrameHeader(c.br, 0)
	if err != nil {
		return err
	}
	if fh.kind != FrameSettings || fh.flags.Has(FlagAck) {
		releaseFrameHeader(fh)
		return fmt.Errorf("h2: first frame was not SETTINGS: %w", ErrProtocol)
	}
	c.applySettings(fh.payload)
	releaseFrameHeader(fh)

	return c.writeSettingsFrame(Settings{}, true)
}

func (c *Conn) applySettings(payload []byte) {
	oldInitialWindow := c.peer.InitialWindowSize
	c.peer = decodeSettingsInto(c.peer, payload)

	if c.peer.InitialWindowSize != oldInitialWindow {
		delta := int32(c.peer.InitialWindowSize) - int32(oldInitialWindow)
		c.streamsMu.RLock()
		for _, s := range c.streams {
			s.addSendWindow(delta)
		}
		c.streamsMu.RUnlock()
		c.windowMu.Lock()
		c.windowCond.Broadcast()
		c.windowMu.Unlock()
	}
}

func (c *Conn) writeSettingsFrame(s Settings, ack bool) error {
	fh := acquireFrameHeader()
	fh.kind = FrameSettings
	if ack {
		fh.flags = fh.flags.Add(FlagAck)
	} else {
		fh.payload = append(fh.payload[:0], encodeSettings(s)...)
		fh.length = len(fh.payload)
	}
	err := c.writeFrameHeader(fh)
	releaseFrameHeader(fh)
	return err
}

func (c *Conn) writeFrameHeader(fh *frameHeader) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrameHeader(c.bw, fh); err != nil {
		return err
	}
	return c.bw.Flush()
}

// reserveSendWindow blocks until n bytes of connection- and stream-level
// send window are available, then debits both (spec §4.3 "Flow control").
func (c *Conn) reserveSendWindow(s *stream, n int) error {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()
	for {
		if c.closed.Load() {
			return ErrClosed
		}
		if s.isClosed() {
			return ErrClosed
		}
		connW := atomic.LoadInt32(&c.connSendWindow)
		strW := atomic.LoadInt32(&s.sendWindow)
		if connW >= int32(n) && strW >= int32(n) {
			atomic.AddInt32(&c.connSendWindow, -int32(n))
			atomic.AddInt32(&s.sendWindow, -int32(n))
			return nil
		}
		c.windowCond.Wait()
	}
}

// readLoop is the connection's sole reader goroutine. It demultiplexes
// incoming frames onto per-stream channels so that blocking on one stream
// never blocks the others (spec §5).
func (c *Conn) readLoop() {
	defer close(c.readLoopDone)
	defer c.teardown(nil)

	for {
		fh, err := readFrameHeader(c.br, c.local.MaxFrameSize)
		if err != nil {
			c.teardown(err)
			return
		}
		if err := c.dispatch(fh); err != nil {
			releaseFrameHeader(fh)
			c.teardown(err)
			return
		}
		releaseFrameHeader(fh)
	}
}

func (c *Conn) dispatch(fh *frameHeader) error {
	switch fh.kind {
	case FrameSettings:
		if fh.flags.Has(FlagAck) {
			return nil
		}
		c.applySettings(fh.payload)
		return c.writeSettingsFrame(Settings{}, true)

	case FrameWindowUpdate:
		increment, err := decodeWindowUpdate(fh.payload)
		if err != nil {
			return err
		}
		c.windowMu.Lock()
		if fh.streamID == 0 {
			atomic.AddInt32(&c.connSendWindow, int32(increment))
		} else if s, ok := c.lookupStream(fh.streamID); ok {
			s.addSendWindow(int32(increment))
		}
		c.windowCond.Broadcast()
		c.windowMu.Unlock()
		return nil

	case FramePing:
		opaque, err := decodePing(fh.payload)
		if err != nil {
			return err
		}
		if fh.flags.Has(FlagAck) {
			c.resolvePing(opaque)
			return nil
		}
		ack := acquireFrameHeader()
		ack.kind = FramePing
		ack.flags = ack.flags.Add(FlagAck)
		ack.payload = encodePing(opaque)
		ack.length = len(ack.payload)
		err = c.writeFrameHeader(ack)
		releaseFrameHeader(ack)
		return err

	case FrameGoAway:
		lastID, _, _, err := decodeGoAway(fh.payload)
		if err != nil {
			return err
		}
		c.goAwayReceived.Store(true)
		atomic.StoreUint32(&c.lastStreamID, lastID)
		return nil

	case FrameRSTStream:
		if s, ok := c.lookupStream(fh.streamID); ok {
			s.abort(ErrConnectionReset)
			c.forgetStream(fh.streamID)
		}
		return nil

	case FrameHeaders:
		return c.dispatchHeaders(fh)

	case FrameData:
		return c.dispatchData(fh)

	case FramePriority, FramePushPromise, FrameContinuation:
		return nil // not used by this adapter's own traffic; tolerated on receive
	}
	return nil
}

func (c *Conn) dispatchHeaders(fh *frameHeader) error {
	if !fh.flags.Has(FlagEndHeaders) {
		return fmt.Errorf("h2: HEADERS without END_HEADERS (CONTINUATION unsupported): %w", ErrProtocol)
	}
	block, err := parseHeadersPayload(fh)
	if err != nil {
		return err
	}
	fields, err := c.dec.DecodeFields(block)
	if err != nil {
		return fmt.Errorf("h2: hpack decode: %w: %v", ErrProtocol, err)
	}

	s, existed := c.lookupStream(fh.streamID)
	if !existed {
		if c.isClient {
			return nil // responses always target a stream we opened
		}
		if c.goAwaySent.Load() {
			return nil // refuse new streams after draining started
		}
		s = newStream(fh.streamID, c, c.peer.InitialWindowSize, c.local.InitialWindowSize)
		if !c.admitStream(s) {
			rst := acquireFrameHeader()
			rst.kind = FrameRSTStream
			rst.streamID = fh.streamID
			rst.payload = encodeRSTStream(ErrCodeRefusedStream)
			err := c.writeFrameHeader(rst)
			releaseFrameHeader(rst)
			return err
		}
		select {
		case c.acceptCh <- s:
		default:
		}
	}
	s.transition(false, false)

	hf := frame.Acquire()
	hf.Type = frame.TypeHeaders
	if fh.flags.Has(FlagEndStream) {
		hf.Flags = hf.Flags.Add(frame.FlagEndStream)
	}
	hf.Flags = hf.Flags.Add(frame.FlagEndHeaders)
	hf.Data = headerwire.Encode(fromHPACKFields(fields))
	s.deliver(hf)

	if fh.flags.Has(FlagEndStream) {
		s.transition(false, true)
	}
	return nil
}

func (c *Conn) dispatchData(fh *frameHeader) error {
	s, ok := c.lookupStream(fh.streamID)
	if !ok {
		return nil
	}
	if s.isClosed() {
		rst := acquireFrameHeader()
		rst.kind = FrameRSTStream
		rst.streamID = fh.streamID
		rst.payload = encodeRSTStream(ErrCodeStreamClosed)
		err := c.writeFrameHeader(rst)
		releaseFrameHeader(rst)
		return err
	}

	body, err := parseDataPayload(fh)
	if err != nil {
		return err
	}

	remaining := atomic.AddInt32(&c.connRecvWindow, -int32(len(body)))
	if remaining < 0 {
		return fmt.Errorf("h2: connection flow control violated: %w", ErrProtocol)
	}
	if s.addRecvWindow(-int32(len(body))) < 0 {
		return fmt.Errorf("h2: stream flow control violated: %w", ErrProtocol)
	}

	// Low-water replenishment (spec §4.3): once a receive window drops
	// under half its initial size, top it back up.
	if remaining < int32(c.local.InitialWindowSize)/2 {
		c.sendWindowUpdate(0, int32(c.local.InitialWindowSize)-remaining)
		atomic.StoreInt32(&c.connRecvWindow, int32(c.local.InitialWindowSize))
	}
	if sw := atomic.LoadInt32(&s.recvWindow); sw < int32(c.local.InitialWindowSize)/2 {
		c.sendWindowUpdate(fh.streamID, int32(c.local.InitialWindowSize)-sw)
		atomic.StoreInt32(&s.recvWindow, int32(c.local.InitialWindowSize))
	}

	df := frame.Acquire()
	df.Type = frame.TypeData
	if fh.flags.Has(FlagEndStream) {
		df.Flags = df.Flags.Add(frame.FlagEndStream)
	}
	df.Data = append(df.Data[:0], body...)
	s.deliver(df)

	if fh.flags.Has(FlagEndStream) {
		s.transition(false, true)
	}
	return nil
}

func (c *Conn) sendWindowUpdate(streamID uint32, increment int32) {
	if increment <= 0 {
		return
	}
	fh := acquireFrameHeader()
	fh.kind = FrameWindowUpdate
	fh.streamID = streamID
	fh.payload = encodeWindowUpdate(uint32(increment))
	fh.length = len(fh.payload)
	c.writeFrameHeader(fh)
	releaseFrameHeader(fh)
}

// fromHPACKFields adapts internal/hpack.Field to the adapter-neutral
// headerwire.Header shape.
func fromHPACKFields(fields []hpack.Field) []headerwire.Header {
	out := make([]headerwire.Header, len(fields))
	for i, f := range fields {
		out[i] = headerwire.Header{Name: f.Name, Value: f.Value}
	}
	return out
}

func (c *Conn) lookupStream(id uint32) (*stream, bool) {
	c.streamsMu.RLock()
	defer c.streamsMu.RUnlock()
	s, ok := c.streams[id]
	return s, ok
}

func (c *Conn) forgetStream(id uint32) {
	c.streamsMu.Lock()
	delete(c.streams, id)
	c.streamsMu.Unlock()
}

func (c *Conn) admitStream(s *stream) bool {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	if uint32(len(c.streams)) >= c.local.MaxConcurrentStreams {
		return false
	}
	c.streams[s.id] = s
	return true
}

// OpenStream allocates a fresh client-initiated stream. Client-initiated
// bidirectional HTTP/2 stream ids are odd and increase by 2 (spec §3).
func (c *Conn) OpenStream() (spi.Stream, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.goAwaySent.Load() || c.goAwayReceived.Load() {
		return nil, ErrClosed
	}
	id := atomic.AddUint32(&c.nextStreamID, 2) - 2
	s := newStream(id, c, c.peer.InitialWindowSize, c.local.InitialWindowSize)
	if !c.admitStream(s) {
		return nil, ErrResourceExhausted
	}
	return s, nil
}

// AcceptStream surfaces the next peer-opened stream (spi.StreamAcceptor).
func (c *Conn) AcceptStream(ctx context.Context) (spi.Stream, error) {
	select {
	case s, ok := <-c.acceptCh:
		if !ok {
			return nil, ErrClosed
		}
		return s, nil
	case <-c.readLoopDone:
		select {
		case s, ok := <-c.acceptCh:
			if ok {
				return s, nil
			}
		default:
		}
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ping sends a PING and blocks until the PONG arrives or ctx expires
// (spec §4.3 "PING and GOAWAY").
func (c *Conn) Ping(ctx context.Context) error {
	var opaque [pingPayloadLen]byte
	rand.Read(opaque[:])

	ch := make(chan struct{})
	c.pingMu.Lock()
	c.pingPending[opaque] = ch
	c.pingMu.Unlock()

	start := time.Now()
	err := c.sendPingOpaque(opaque)
	if err != nil {
		c.pingMu.Lock()
		delete(c.pingPending, opaque)
		c.pingMu.Unlock()
		return err
	}

	select {
	case <-ch:
		if c.onRTT != nil {
			c.onRTT(time.Since(start))
		}
		return nil
	case <-ctx.Done():
		c.pingMu.Lock()
		delete(c.pingPending, opaque)
		c.pingMu.Unlock()
		return ctx.Err()
	}
}

func (c *Conn) sendPing() error {
	var opaque [pingPayloadLen]byte
	rand.Read(opaque[:])
	return c.sendPingOpaque(opaque)
}

func (c *Conn) sendPingOpaque(opaque [pingPayloadLen]byte) error {
	fh := acquireFrameHeader()
	fh.kind = FramePing
	fh.payload = encodePing(opaque)
	fh.length = len(fh.payload)
	err := c.writeFrameHeader(fh)
	releaseFrameHeader(fh)
	return err
}

func (c *Conn) resolvePing(opaque [pingPayloadLen]byte) {
	c.pingMu.Lock()
	ch, ok := c.pingPending[opaque]
	if ok {
		delete(c.pingPending, opaque)
	}
	c.pingMu.Unlock()
	if ok {
		close(ch)
	}
}

// GoAway sends GOAWAY with the highest stream id dispatched so far,
// refusing new streams while letting existing ones run to completion
// (spec §4.6 "Graceful shutdown").
func (c *Conn) GoAway() error {
	c.goAwaySent.Store(true)
	c.streamsMu.RLock()
	var lastID uint32
	for id := range c.streams {
		if id > lastID {
			lastID = id
		}
	}
	c.streamsMu.RUnlock()

	fh := acquireFrameHeader()
	fh.kind = FrameGoAway
	fh.payload = encodeGoAway(lastID, ErrCodeNo, nil)
	fh.length = len(fh.payload)
	err := c.writeFrameHeader(fh)
	releaseFrameHeader(fh)
	return err
}

func (c *Conn) IsConnected() bool { return !c.closed.Load() }

func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

func (c *Conn) Close() error {
	c.teardown(ErrClosed)
	return c.nc.Close()
}

func (c *Conn) teardown(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if err == nil {
		err = ErrConnectionReset
	}
	c.closeErr.Store(err)

	c.streamsMu.Lock()
	for _, s := range c.streams {
		s.abort(err)
	}
	c.streamsMu.Unlock()

	c.windowMu.Lock()
	c.windowCond.Broadcast()
	c.windowMu.Unlock()

	c.nc.Close()
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// jitteredBackoff returns base plus a random extra of up to a quarter of
// base, drawn with fastrand the way the teacher jitters its timers
// (client.go OnRTT / utils.go). Nothing in this package calls it.
func jitteredBackoff(base time.Duration) time.Duration {
	jitter := time.Duration(fastrand.Uint32n(uint32(base / 4)))
	return base + jitter
}
