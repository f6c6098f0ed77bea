package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"guardian-go/internal/guardian"
)

// DefaultTimeout bounds connecting and exchanging the call messages.
const DefaultTimeout = 30 * time.Second

// WebSocketTransport is the client side of the exchange protocol.
type WebSocketTransport struct {
	url     string
	token   string
	timeout time.Duration
	encoder guardian.EncodingService
}

// NewWebSocketTransport creates a transport for the server at url
// (http, https, ws or wss). token, when set, is sent as a bearer token.
func NewWebSocketTransport(url, token string, timeout time.Duration, encoder guardian.EncodingService) *WebSocketTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebSocketTransport{url: url, token: token, timeout: timeout, encoder: encoder}
}

// Exchange implements Transport. The response blob streams from the open
// connection, which is released when the blob is closed; the timeout
// does not apply to reading it.
func (t *WebSocketTransport) Exchange(call *Call, blob guardian.BlobSource) (*Response, guardian.BlobSource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if t.token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+t.token)
	}
	conn, _, err := websocket.Dial(ctx, t.url, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", t.url, err)
	}
	conn.SetReadLimit(-1)

	resp, err := t.roundTrip(ctx, conn, call, blob)
	if err != nil {
		conn.CloseNow()
		return nil, nil, err
	}

	// The response blob may outlive ctx, so it gets its own context.
	streamCtx, streamCancel := context.WithCancel(context.Background())
	_, r, err := conn.Reader(streamCtx)
	if err != nil {
		streamCancel()
		conn.CloseNow()
		return nil, nil, fmt.Errorf("reading response blob: %w", err)
	}

	if resp.BlobLength == 0 {
		io.Copy(io.Discard, r)
		streamCancel()
		conn.Close(websocket.StatusNormalClosure, "")
		return resp, nil, nil
	}
	body := &streamBody{r: r, conn: conn, cancel: streamCancel, want: resp.BlobLength}
	return resp, guardian.NewReaderBlob(body, resp.BlobLength), nil
}

func (t *WebSocketTransport) roundTrip(ctx context.Context, conn *websocket.Conn, call *Call, blob guardian.BlobSource) (*Response, error) {
	call.BlobLength = 0
	if blob != nil {
		call.BlobLength = blob.TotalLength()
	}
	data, err := t.encoder.Encode(call)
	if err != nil {
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return nil, fmt.Errorf("sending call: %w", err)
	}
	if err := writeBlob(ctx, conn, blob); err != nil {
		return nil, fmt.Errorf("sending blob: %w", err)
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var resp Response
	if err := t.encoder.Decode(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// writeBlob sends blob as one binary message; a nil blob is sent empty.
func writeBlob(ctx context.Context, conn *websocket.Conn, blob guardian.BlobSource) error {
	w, err := conn.Writer(ctx, websocket.MessageBinary)
	if err != nil {
		return err
	}
	if blob != nil {
		if _, err := guardian.CheckedCopy(w, blob); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// streamBody reads a response blob off the connection.
type streamBody struct {
	r      io.Reader
	conn   *websocket.Conn
	cancel context.CancelFunc
	want   uint64
	got    uint64
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.got += uint64(n)
	return n, err
}

// Close ends the exchange cleanly when the whole blob was read and
// drops the connection otherwise.
func (b *streamBody) Close() error {
	defer b.cancel()
	if b.got < b.want {
		return b.conn.CloseNow()
	}
	io.Copy(io.Discard, b.r)
	return b.conn.Close(websocket.StatusNormalClosure, "")
}

// exchange runs a call without blobs in either direction and returns
// the response, translating failures into errors.
func exchange(t Transport, call *Call) (*Response, error) {
	resp, blob, err := t.Exchange(call, nil)
	if err != nil {
		return nil, err
	}
	if blob != nil {
		blob.Close()
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

var _ Transport = (*WebSocketTransport)(nil)

