// Package device opens SSH sessions against network devices and runs one
// command per session, returning typed results instead of raising errors
// through to callers.
package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/nocauto/noc-engine/pkg/util"
)

// Credentials authenticates an SSH session. PrivateKey takes precedence over
// Password when both are set.
type Credentials struct {
	Username   string
	Password   string
	PrivateKey []byte
}

// Timeouts holds the independently configurable SSH timing knobs.
type Timeouts struct {
	Connect  time.Duration
	Auth     time.Duration
	Banner   time.Duration
	Blocking time.Duration
	Read     time.Duration
	Session  time.Duration
	Overall  time.Duration
}

// DefaultTimeouts returns connect 10s, auth 10s, banner 15s, blocking 20s,
// read 10s, session 60s, overall 100s.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:  10 * time.Second,
		Auth:     10 * time.Second,
		Banner:   15 * time.Second,
		Blocking: 20 * time.Second,
		Read:     10 * time.Second,
		Session:  60 * time.Second,
		Overall:  100 * time.Second,
	}
}

// Prompts holds the trailing-prompt regex per platform driver hint. Each
// pattern matches the prompt text a platform prints once a command's output
// has finished.
var Prompts = map[string]*regexp.Regexp{
	"ios":   regexp.MustCompile(`(?m)[\w.-]+[#>]\s*$`),
	"iosxr": regexp.MustCompile(`(?m)RP/\d+/\w+/CPU\d+:[\w.-]+[#>]\s*$`),
	"nxos":  regexp.MustCompile(`(?m)[\w.-]+[#>]\s*$`),
	"eos":   regexp.MustCompile(`(?m)[\w.-]+[#>]\s*$`),
	"junos": regexp.MustCompile(`(?m)[\w.@-]+[#>]\s*$`),
	"panos": regexp.MustCompile(`(?m)[\w.-]+[#>]\s*$`),
}

var defaultPrompt = regexp.MustCompile(`(?m)[\w.-]+[#>$]\s*$`)

// Result is the output contract for one command invocation.
type Result struct {
	Success       bool
	Output        string
	ExecutionTime time.Duration
	ErrorKind     util.ErrorKind
}

// Connector opens one SSH session per command. It never panics and never
// returns a bare error for an operational failure — see Run.
type Connector struct {
	// HostKeyCallback verifies the remote host key. Nil defaults to
	// ssh.InsecureIgnoreHostKey, suitable for lab/dev only.
	HostKeyCallback ssh.HostKeyCallback
}

// NewConnector returns a Connector configured for lab/dev use (no host key
// verification). Production deployments should set HostKeyCallback to a
// golang.org/x/crypto/ssh/knownhosts callback.
func NewConnector() *Connector {
	return &Connector{HostKeyCallback: ssh.InsecureIgnoreHostKey()}
}

// Run dials addr, authenticates with creds, runs command on an interactive
// shell, and scans output until the platform's prompt matches or a timeout
// fires. Failures are reported through Result.ErrorKind, never as a bare
// Go error.
func (c *Connector) Run(ctx context.Context, addr, driverHint string, creds Credentials, command string, t Timeouts) *Result {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, t.Overall)
	defer cancel()

	client, kind, err := c.dial(runCtx, addr, creds, t)
	if err != nil {
		util.WithFields(map[string]interface{}{"addr": addr, "error_kind": kind}).Warnf("device: dial failed: %v", err)
		return &Result{ExecutionTime: time.Since(start), ErrorKind: kind}
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return &Result{ExecutionTime: time.Since(start), ErrorKind: util.KindUnreachable}
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return &Result{ExecutionTime: time.Since(start), ErrorKind: util.KindUnreachable}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return &Result{ExecutionTime: time.Since(start), ErrorKind: util.KindUnreachable}
	}

	if err := session.Shell(); err != nil {
		return &Result{ExecutionTime: time.Since(start), ErrorKind: util.KindCommandUnsupported}
	}

	prompt := Prompts[driverHint]
	if prompt == nil {
		prompt = defaultPrompt
	}

	output, kind, err := c.scan(runCtx, stdin, stdout, command, prompt, t)
	if err != nil {
		util.WithFields(map[string]interface{}{"addr": addr, "command": command}).Warnf("device: command failed: %v", err)
		return &Result{Output: output, ExecutionTime: time.Since(start), ErrorKind: kind}
	}

	return &Result{Success: true, Output: output, ExecutionTime: time.Since(start)}
}

func (c *Connector) dial(ctx context.Context, addr string, creds Credentials, t Timeouts) (*ssh.Client, util.ErrorKind, error) {
	auth, err := authMethods(creds)
	if err != nil {
		return nil, util.KindAuthFailed, err
	}

	hostKeyCallback := c.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.Connect + t.Auth + t.Banner,
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		client, dialErr := ssh.Dial("tcp", addr, config)
		resultCh <- dialResult{client, dialErr}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, classifyDialError(r.err), r.err
		}
		return r.client, "", nil
	case <-ctx.Done():
		return nil, util.KindTimeout, ctx.Err()
	}
}

func authMethods(creds Credentials) ([]ssh.AuthMethod, error) {
	if len(creds.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(creds.Password)}, nil
}

func classifyDialError(err error) util.ErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authenticate") || strings.Contains(msg, "auth"):
		return util.KindAuthFailed
	case strings.Contains(msg, "timeout"):
		return util.KindTimeout
	default:
		return util.KindUnreachable
	}
}

// scan writes command to stdin and reads stdout until prompt matches, the
// blocking-read timer fires with no new data, or ctx is done.
func (c *Connector) scan(ctx context.Context, stdin io.WriteCloser, stdout io.Reader, command string, prompt *regexp.Regexp, t Timeouts) (string, util.ErrorKind, error) {
	if _, err := io.WriteString(stdin, command+"\n"); err != nil {
		return "", util.KindUnreachable, fmt.Errorf("write command: %w", err)
	}

	type chunk struct {
		data []byte
		err  error
	}
	reads := make(chan chunk, 16)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				reads <- chunk{data: data}
			}
			if err != nil {
				reads <- chunk{err: err}
				return
			}
		}
	}()

	blocking := t.Blocking
	if blocking <= 0 {
		blocking = 20 * time.Second
	}

	var out bytes.Buffer
	idle := time.NewTimer(blocking)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return out.String(), util.KindTimeout, ctx.Err()
		case <-idle.C:
			return out.String(), util.KindTimeout, fmt.Errorf("no output for %s", blocking)
		case r := <-reads:
			if len(r.data) > 0 {
				out.Write(r.data)
				if prompt.Match(out.Bytes()) {
					return out.String(), "", nil
				}
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(blocking)
			}
			if r.err != nil {
				if r.err == io.EOF {
					return out.String(), util.KindCommandUnsupported, fmt.Errorf("session closed before prompt: %w", r.err)
				}
				return out.String(), util.KindUnreachable, r.err
			}
		}
	}
}
