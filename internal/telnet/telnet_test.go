package telnet

import (
	"bytes"
	"testing"
)

type fakeWriter struct {
	bytes.Buffer
}

func TestFeedStripsPlainIAC(t *testing.T) {
	c := New(&fakeWriter{})
	out, events := c.Feed([]byte{'h', 'i', IAC, IAC, '!'})
	if string(out) != "hi\xff!" {
		t.Fatalf("out = %q, want escaped 0xFF passed through as literal", out)
	}
	if len(events) != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestFeedAcrossFragments(t *testing.T) {
	c := New(&fakeWriter{})
	whole := []byte{'a', 'b', IAC, WILL, OptSGA, 'c', 'd'}

	var got []byte
	for i := range whole {
		chunk := whole[i : i+1]
		out, _ := c.Feed(chunk)
		got = append(got, out...)
	}
	if string(got) != "abcd" {
		t.Fatalf("fragmented feed = %q, want %q", got, "abcd")
	}
}

func TestWillSGARepliesDO(t *testing.T) {
	w := &fakeWriter{}
	c := New(w)
	c.Feed([]byte{IAC, WILL, OptSGA})
	want := []byte{IAC, DO, OptSGA}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("reply = % x, want % x", w.Bytes(), want)
	}
}

func TestWillUnknownRepliesDONT(t *testing.T) {
	w := &fakeWriter{}
	c := New(w)
	c.Feed([]byte{IAC, WILL, 99})
	want := []byte{IAC, DONT, 99}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("reply = % x, want % x", w.Bytes(), want)
	}
}

func TestDoNAWSRepliesWillAndEmitsEvent(t *testing.T) {
	w := &fakeWriter{}
	c := New(w)
	_, events := c.Feed([]byte{IAC, DO, OptNAWS})
	want := []byte{IAC, WILL, OptNAWS}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("reply = % x, want % x", w.Bytes(), want)
	}
	if len(events) != 1 || !events[0].NAWSRequested {
		t.Fatalf("events = %+v, want one NAWSRequested event", events)
	}
}

func TestGAExtractsNormalizedPrompt(t *testing.T) {
	c := New(&fakeWriter{})
	_, events := c.Feed([]byte("login:   "))
	if len(events) != 0 {
		t.Fatalf("unexpected events before GA: %+v", events)
	}
	_, events = c.Feed([]byte{IAC, GA})
	if len(events) != 1 || !events[0].PromptReady {
		t.Fatalf("events = %+v, want one PromptReady event", events)
	}
	if events[0].Prompt != "login: " {
		t.Fatalf("prompt = %q, want %q", events[0].Prompt, "login: ")
	}
}

func TestEORAlsoTriggersPrompt(t *testing.T) {
	c := New(&fakeWriter{})
	c.Feed([]byte("> "))
	_, events := c.Feed([]byte{IAC, EOR})
	if len(events) != 1 || !events[0].PromptReady {
		t.Fatalf("expected a prompt event on EOR, got %+v", events)
	}
}

func TestNOPIsConsumedSilently(t *testing.T) {
	c := New(&fakeWriter{})
	out, events := c.Feed([]byte{'a', IAC, NOP, 'b'})
	if string(out) != "ab" {
		t.Fatalf("out = %q, want %q", out, "ab")
	}
	if len(events) != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestSubnegotiationTTypeSend(t *testing.T) {
	c := New(&fakeWriter{})
	_, events := c.Feed([]byte{IAC, SB, OptTType, TTypeSend, IAC, SE})
	if len(events) != 1 || !events[0].TTypeRequested {
		t.Fatalf("events = %+v, want one TTypeRequested event", events)
	}
}

func TestSendTTypeFormatsISResponse(t *testing.T) {
	w := &fakeWriter{}
	c := New(w)
	c.SendTType("xterm")
	want := append([]byte{IAC, SB, OptTType, TTypeIs}, []byte("xterm")...)
	want = append(want, IAC, SE)
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("SendTType output = % x, want % x", w.Bytes(), want)
	}
}

func TestSendNAWSEncodesDimensions(t *testing.T) {
	w := &fakeWriter{}
	c := New(w)
	c.SendNAWS(80, 24)
	want := []byte{IAC, SB, OptNAWS, 0, 80, 0, 24, IAC, SE}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("SendNAWS output = % x, want % x", w.Bytes(), want)
	}
}
