package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/wire"
	"golang.org/x/xerrors"
)

// writeFrame writes a length-prefixed frame: a 4-byte big-endian length
// followed by payload, the explicit delimiting a raw TCP stream needs in
// place of ZeroMQ's discrete message frames.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// tcpRequester implements Requester over a persistent TCP connection.
// Calls are serialized with a mutex: only one per-worker dispatch
// goroutine ever owns a given Requester at a time, matching the spec's
// "per-worker request/reply client socket".
type tcpRequester struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialTCP opens a persistent TCP connection to address for use as a
// Requester.
func DialTCP(ctx context.Context, address string) (Requester, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, xerrors.Errorf("dial %s: %w", address, err)
	}
	return &tcpRequester{conn: conn}, nil
}

func (r *tcpRequester) Call(ctx context.Context, msg wire.Message) (wire.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	body, err := wire.Encode(msg)
	if err != nil {
		return wire.Message{}, err
	}
	if err := writeFrame(r.conn, body); err != nil {
		return wire.Message{}, xerrors.Errorf("send request: %w", err)
	}
	replyBody, err := readFrame(r.conn)
	if err != nil {
		return wire.Message{}, xerrors.Errorf("receive reply: %w", err)
	}
	return wire.Decode(replyBody)
}

func (r *tcpRequester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Close()
}

// tcpDialer dials Requesters over TCP.
type tcpDialer struct{}

// NewTCPDialer returns a Dialer that opens TCP connections.
func NewTCPDialer() Dialer { return tcpDialer{} }

func (tcpDialer) Dial(ctx context.Context, address string) (Requester, error) {
	return DialTCP(ctx, address)
}

// tcpReplier implements Replier: one net.Listener, accepting one
// connection per request the way the original's single bound REP socket
// serves one client transaction at a time.
type tcpReplier struct {
	ln net.Listener
}

// ListenTCP binds address and returns a Replier.
func ListenTCP(address string) (Replier, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, xerrors.Errorf("listen %s: %w", address, err)
	}
	return &tcpReplier{ln: ln}, nil
}

func (t *tcpReplier) Receive(ctx context.Context) (*Exchange, error) {
	conn, err := t.ln.Accept()
	if err != nil {
		return nil, xerrors.Errorf("accept: %w", err)
	}
	body, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, xerrors.Errorf("receive request: %w", err)
	}
	msg, err := wire.Decode(body)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Exchange{
		Request: msg,
		replyFn: func(reply wire.Message) error {
			replyBody, err := wire.Encode(reply)
			if err != nil {
				return err
			}
			return writeFrame(conn, replyBody)
		},
		closeFn: conn.Close,
	}, nil
}

func (t *tcpReplier) Addr() string {
	return t.ln.Addr().String()
}

func (t *tcpReplier) Close() error {
	return t.ln.Close()
}

// tcpBroadcaster implements Broadcaster. Subscribers dial in and are
// fanned out to on every Publish; a dead subscriber connection is dropped
// silently, matching the spec's "no cooperative yield" / "workers are
// trusted" stance on transport errors toward a single peer.
type tcpBroadcaster struct {
	ln net.Listener

	mu          sync.Mutex
	subscribers map[net.Conn]struct{}
}

// ListenBroadcastTCP binds address and accepts subscriber connections in a
// background goroutine until Close is called.
func ListenBroadcastTCP(address string) (Broadcaster, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, xerrors.Errorf("listen %s: %w", address, err)
	}
	b := &tcpBroadcaster{ln: ln, subscribers: make(map[net.Conn]struct{})}
	go b.acceptLoop()
	return b, nil
}

func (b *tcpBroadcaster) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.subscribers[conn] = struct{}{}
		b.mu.Unlock()
	}
}

func (b *tcpBroadcaster) Publish(id model.WorkerID, msg wire.Message) error {
	frame, err := wire.EncodeBroadcastFrame(id, msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.subscribers {
		if err := writeFrame(conn, frame); err != nil {
			conn.Close()
			delete(b.subscribers, conn)
		}
	}
	return nil
}

func (b *tcpBroadcaster) Close() error {
	b.mu.Lock()
	for conn := range b.subscribers {
		conn.Close()
	}
	b.subscribers = make(map[net.Conn]struct{})
	b.mu.Unlock()
	return b.ln.Close()
}

// DialSubscriber opens a subscriber connection to a broadcaster bound with
// ListenBroadcastTCP and returns a function that reads the next frame
// addressed to id, discarding frames for other workers, mirroring
// "subscribers filter on the 7-byte prefix".
func DialSubscriber(ctx context.Context, address string, id model.WorkerID) (func() (wire.Message, error), func() error, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, nil, xerrors.Errorf("dial broadcaster %s: %w", address, err)
	}

	next := func() (wire.Message, error) {
		for {
			frame, err := readFrame(conn)
			if err != nil {
				return wire.Message{}, err
			}
			frameID, msg, err := wire.DecodeBroadcastFrame(frame)
			if err != nil {
				return wire.Message{}, err
			}
			if frameID != id {
				continue
			}
			return msg, nil
		}
	}
	return next, conn.Close, nil
}
