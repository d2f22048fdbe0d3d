// Package sshpoll implements the SshPoll connector: a polling device
// connector that samples a peripheral host by running a command over
// SSH on every poll tick and emitting the output as a data event.
package sshpoll

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/edgehub-net/edgehub/pkg/connector"
	"github.com/edgehub-net/edgehub/pkg/util"
)

// Connector samples a device over SSH at the configured poll
// frequency.
type Connector struct {
	*connector.Polling

	mu      sync.Mutex
	client  *ssh.Client
	command string
}

// New constructs an inactive SshPoll connector.
func New(id string) connector.Connector {
	c := &Connector{}
	c.Polling = connector.NewPolling(id, c.process)
	c.BindHooks(c.start, c.shutdown)
	return c
}

func (c *Connector) start(ctx context.Context, config connector.Payload) (interface{}, error) {
	host, _ := config["host"].(string)
	user, _ := config["username"].(string)
	pass, _ := config["password"].(string)
	command, _ := config["command"].(string)
	if host == "" || user == "" || command == "" {
		return nil, fmt.Errorf("%w: host, username, and command are required", util.ErrInvalidConfig)
	}
	port := 22
	if v, ok := config["port"].(float64); ok && v > 0 {
		port = int(v)
	}

	sshConfig := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(pass),
		},
		// Edge deployments pin devices by address, not host key.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s@%s: %w", user, addr, err)
	}

	c.mu.Lock()
	c.client = client
	c.command = command
	c.mu.Unlock()

	c.Logger().Infof("sampling %s via %q", addr, command)
	return connector.Payload{"host": host, "port": port}, nil
}

func (c *Connector) shutdown(ctx context.Context) (interface{}, error) {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// process runs the sampling command once and emits the reading. JSON
// object output is emitted as-is; anything else is wrapped under a
// "raw" key.
func (c *Connector) process(ctx context.Context) {
	c.mu.Lock()
	client := c.client
	command := c.command
	c.mu.Unlock()
	if client == nil {
		return
	}

	session, err := client.NewSession()
	if err != nil {
		c.Logger().Warnf("sample session failed: %v", err)
		return
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	if err != nil {
		c.Logger().Warnf("sample command failed: %v", err)
		return
	}

	reading := connector.Payload{}
	if err := json.Unmarshal(out, &reading); err != nil {
		reading = connector.Payload{"raw": strings.TrimSpace(string(out))}
	}
	reading["source"] = c.ID()
	reading["sampledAt"] = time.Now().UTC().Format(time.RFC3339)
	c.EmitData(reading)
}
