package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"murmur/internal/session"
)

// ErrDaemonUnavailable means nothing is listening on the control socket.
var ErrDaemonUnavailable = errors.New("cannot connect to daemon")

const dialTimeout = 2 * time.Second

func dial(ctx context.Context, socketPath string) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	return conn, nil
}

// Call sends one request and waits for its response. A stop can take as
// long as transcription does, so no read deadline is set beyond ctx.
func Call(ctx context.Context, socketPath string, req Request) (Response, error) {
	conn, err := dial(ctx, socketPath)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("read %s response: %w", req.Op, err)
	}
	return resp, nil
}

// Do is Call plus conversion of a failed response into an error.
func Do(ctx context.Context, socketPath string, req Request) (Response, error) {
	resp, err := Call(ctx, socketPath, req)
	if err != nil {
		return resp, err
	}
	return resp, resp.Err()
}

// Stream subscribes to session events and calls fn for each one until ctx
// ends, the daemon hangs up, or fn returns an error.
func Stream(ctx context.Context, socketPath string, fn func(session.Event) error) error {
	conn, err := dial(ctx, socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(Request{Op: OpEvents}); err != nil {
		return err
	}
	dec := json.NewDecoder(bufio.NewReader(conn))
	var ack Response
	if err := dec.Decode(&ack); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := ack.Err(); err != nil {
		return err
	}
	for {
		var ev session.Event
		if err := dec.Decode(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
