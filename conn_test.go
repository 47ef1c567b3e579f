package frameserv

import (
	"io"
	"net"
	"testing"
	"time"
)

// writeSplit writes b to conn in arbitrary chunks, exercising the receive
// state machine's tolerance for TCP segment splitting (spec.md §4.4/§8).
func writeSplit(t *testing.T, conn net.Conn, b []byte, chunk int) {
	t.Helper()
	for len(b) > 0 {
		n := chunk
		if n > len(b) {
			n = len(b)
		}
		if _, err := conn.Write(b[:n]); err != nil {
			t.Fatalf("write: %v", err)
		}
		b = b[n:]
	}
}

func TestServeSingleFrameWholeWrite(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	cs := newConnState(server, newIoContext())

	var got []struct {
		opcode int16
		body   []byte
	}
	publish := func(opcode int16, body []byte) {
		cp := append([]byte(nil), body...)
		got = append(got, struct {
			opcode int16
			body   []byte
		}{opcode, cp})
	}

	done := make(chan error, 1)
	go func() { done <- cs.serve(DefaultMaxBodyLen, publish) }()

	frame := append(encodeHeader(7, 5)[:], []byte("hello")...)
	writeSplit(t, client, frame, len(frame))
	client.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("serve returned %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}

	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if got[0].opcode != 7 || string(got[0].body) != "hello" {
		t.Fatalf("got frame %+v", got[0])
	}
}

func TestServeFrameSplitAcrossManySegments(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	cs := newConnState(server, newIoContext())

	var gotOpcode int16
	var gotBody []byte
	publish := func(opcode int16, body []byte) {
		gotOpcode = opcode
		gotBody = append([]byte(nil), body...)
	}

	done := make(chan error, 1)
	go func() { done <- cs.serve(DefaultMaxBodyLen, publish) }()

	frame := append(encodeHeader(3, 9)[:], []byte("abcdefghi")...)
	writeSplit(t, client, frame, 1) // one byte at a time, worst case splitting
	client.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("serve returned %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}

	if gotOpcode != 3 || string(gotBody) != "abcdefghi" {
		t.Fatalf("got opcode=%d body=%q", gotOpcode, gotBody)
	}
}

func TestServeZeroLengthBodyPublishesImmediately(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	cs := newConnState(server, newIoContext())

	var calls int
	publish := func(opcode int16, body []byte) {
		calls++
		if opcode != 42 {
			t.Errorf("opcode: got %d, want 42", opcode)
		}
		if len(body) != 0 {
			t.Errorf("body: got %q, want empty", body)
		}
	}

	done := make(chan error, 1)
	go func() { done <- cs.serve(DefaultMaxBodyLen, publish) }()

	h := encodeHeader(42, 0)
	writeSplit(t, client, h[:], len(h))
	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}

	if calls != 1 {
		t.Fatalf("publish called %d times, want 1", calls)
	}
}

func TestServeMultipleFramesOnOneConnection(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	cs := newConnState(server, newIoContext())

	var opcodes []int16
	publish := func(opcode int16, body []byte) {
		opcodes = append(opcodes, opcode)
	}

	done := make(chan error, 1)
	go func() { done <- cs.serve(DefaultMaxBodyLen, publish) }()

	f1 := append(encodeHeader(1, 3)[:], []byte("one")...)
	f2 := append(encodeHeader(2, 5)[:], []byte("two!!")...)
	writeSplit(t, client, append(f1, f2...), 4)
	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}

	if len(opcodes) != 2 || opcodes[0] != 1 || opcodes[1] != 2 {
		t.Fatalf("got opcodes %v, want [1 2]", opcodes)
	}
}

func TestServeBodyTooLongClosesWithErrTooLong(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	cs := newConnState(server, newIoContext())

	done := make(chan error, 1)
	go func() { done <- cs.serve(16, func(int16, []byte) {}) }()

	h := encodeHeader(1, 1<<20)
	writeSplit(t, client, h[:], len(h))

	select {
	case err := <-done:
		if err != ErrTooLong {
			t.Fatalf("serve returned %v, want ErrTooLong", err)
		}
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeNegativeBodyLenClosesWithErrTooLong(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	cs := newConnState(server, newIoContext())

	done := make(chan error, 1)
	go func() { done <- cs.serve(DefaultMaxBodyLen, func(int16, []byte) {}) }()

	h := encodeHeader(1, -1)
	writeSplit(t, client, h[:], len(h))

	select {
	case err := <-done:
		if err != ErrTooLong {
			t.Fatalf("serve returned %v, want ErrTooLong", err)
		}
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}
}

func TestConnStateTouchUpdatesIdleSince(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cs := newConnState(server, newIoContext())

	time.Sleep(5 * time.Millisecond)
	first := cs.idleSince()
	cs.touch()
	second := cs.idleSince()

	if second >= first {
		t.Fatalf("idleSince after touch: got %v, want less than %v", second, first)
	}
}
