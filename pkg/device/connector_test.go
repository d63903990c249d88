package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nocauto/noc-engine/pkg/util"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestScan_MatchesPromptAndStops(t *testing.T) {
	c := &Connector{}
	r, w := io.Pipe()
	var stdin bytes.Buffer

	go func() {
		io.WriteString(w, "show version\r\n")
		io.WriteString(w, "Cisco IOS Software\r\n")
		io.WriteString(w, "router1#")
		w.Close()
	}()

	out, kind, err := c.scan(context.Background(), nopWriteCloser{&stdin}, r, "show version", Prompts["ios"], Timeouts{Blocking: time.Second})
	if err != nil {
		t.Fatalf("scan() error = %v", err)
	}
	if kind != "" {
		t.Errorf("kind = %q, want empty", kind)
	}
	if !bytes.Contains([]byte(out), []byte("router1#")) {
		t.Errorf("output missing prompt: %q", out)
	}
	if stdin.String() != "show version\n" {
		t.Errorf("stdin = %q", stdin.String())
	}
}

func TestScan_BlockingTimeout(t *testing.T) {
	c := &Connector{}
	r, w := io.Pipe()
	defer w.Close()
	var stdin bytes.Buffer

	_, kind, err := c.scan(context.Background(), nopWriteCloser{&stdin}, r, "show version", Prompts["ios"], Timeouts{Blocking: 20 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if kind != util.KindTimeout {
		t.Errorf("kind = %q, want %q", kind, util.KindTimeout)
	}
}

func TestScan_EOFBeforePrompt(t *testing.T) {
	c := &Connector{}
	r, w := io.Pipe()
	var stdin bytes.Buffer

	go func() {
		io.WriteString(w, "partial output")
		w.Close()
	}()

	_, kind, err := c.scan(context.Background(), nopWriteCloser{&stdin}, r, "show version", Prompts["ios"], Timeouts{Blocking: time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind != util.KindCommandUnsupported {
		t.Errorf("kind = %q, want %q", kind, util.KindCommandUnsupported)
	}
}

func TestScan_ContextCancelled(t *testing.T) {
	c := &Connector{}
	r, w := io.Pipe()
	defer w.Close()
	var stdin bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, kind, err := c.scan(ctx, nopWriteCloser{&stdin}, r, "show version", Prompts["ios"], Timeouts{Blocking: time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind != util.KindTimeout {
		t.Errorf("kind = %q, want %q", kind, util.KindTimeout)
	}
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		err  error
		want util.ErrorKind
	}{
		{errors.New("ssh: unable to authenticate"), util.KindAuthFailed},
		{errors.New("dial tcp: i/o timeout"), util.KindTimeout},
		{errors.New("dial tcp: connection refused"), util.KindUnreachable},
	}
	for _, tt := range tests {
		if got := classifyDialError(tt.err); got != tt.want {
			t.Errorf("classifyDialError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAuthMethods_Password(t *testing.T) {
	methods, err := authMethods(Credentials{Username: "admin", Password: "secret"})
	if err != nil {
		t.Fatalf("authMethods() error = %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected 1 auth method, got %d", len(methods))
	}
}

func TestAuthMethods_InvalidKey(t *testing.T) {
	_, err := authMethods(Credentials{Username: "admin", PrivateKey: []byte("not a key")})
	if err == nil {
		t.Fatal("expected error for invalid private key")
	}
}

func TestDefaultTimeouts(t *testing.T) {
	dt := DefaultTimeouts()
	if dt.Connect != 10*time.Second || dt.Overall != 100*time.Second {
		t.Errorf("unexpected defaults: %+v", dt)
	}
}

func TestPrompts_MatchTrailingPrompt(t *testing.T) {
	if !Prompts["ios"].MatchString("Building configuration...\nrouter1#") {
		t.Error("ios prompt should match trailing #")
	}
	if !defaultPrompt.MatchString("switch>") {
		t.Error("default prompt should match trailing >")
	}
}
