// SSH-backed provisioner: applies scaling deltas by running configured
// shell commands on a remote host (e.g. "docker compose up -d --scale
// app=%d" behind a templated unit count, or a systemd template instance).
package provision

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSH runs scale commands over an SSH connection. Each command template
// must contain exactly one %d verb, substituted with the instance delta.
type SSH struct {
	host     string
	user     string
	password string
	keyPEM   string

	upCommand   string
	downCommand string

	dialTimeout time.Duration
}

// NewSSH builds an SSH provisioner. Either password or keyPEM (or both)
// must be non-empty. Host may omit the port; :22 is assumed.
func NewSSH(host, user, password, keyPEM, upCommand, downCommand string) (*SSH, error) {
	if password == "" && keyPEM == "" {
		return nil, fmt.Errorf("ssh provisioner: no authentication configured for %s", host)
	}
	if !strings.Contains(upCommand, "%d") || !strings.Contains(downCommand, "%d") {
		return nil, fmt.Errorf("ssh provisioner: scale commands must contain a %%d count placeholder")
	}
	return &SSH{
		host:        host,
		user:        user,
		password:    password,
		keyPEM:      keyPEM,
		upCommand:   upCommand,
		downCommand: downCommand,
		dialTimeout: 15 * time.Second,
	}, nil
}

// Provision runs the scale-up command with the given count.
func (p *SSH) Provision(ctx context.Context, count int) error {
	if count <= 0 {
		return fmt.Errorf("provision count must be positive, got %d", count)
	}
	return p.run(ctx, fmt.Sprintf(p.upCommand, count))
}

// Deprovision runs the scale-down command with the given count.
func (p *SSH) Deprovision(ctx context.Context, count int) error {
	if count <= 0 {
		return fmt.Errorf("deprovision count must be positive, got %d", count)
	}
	return p.run(ctx, fmt.Sprintf(p.downCommand, count))
}

// run dials, executes one command and closes the connection. Connections
// are short-lived; scaling events are minutes apart at the fastest.
func (p *SSH) run(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var authMethods []ssh.AuthMethod
	if p.keyPEM != "" {
		signer, err := ssh.ParsePrivateKey([]byte(p.keyPEM))
		if err != nil {
			return fmt.Errorf("parsing SSH key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if p.password != "" {
		authMethods = append(authMethods, ssh.Password(p.password))
	}

	cfg := &ssh.ClientConfig{
		User:            p.user,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: use known_hosts in production
		Timeout:         p.dialTimeout,
	}

	addr := p.host
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	if msg := strings.TrimSpace(string(out)); msg != "" {
		log.Printf("[provision:ssh:%s] %s", p.host, msg)
	}
	if err != nil {
		return fmt.Errorf("ssh %s cmd=%q: %w", p.host, cmd, err)
	}
	return nil
}
