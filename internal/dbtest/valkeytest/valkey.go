// Package valkeytest runs a throwaway ValKey server for the state store tests.
package valkeytest

import (
	"context"
	"fmt"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/valkey-io/valkey-go"

	valkeycontainer "github.com/testcontainers/testcontainers-go/modules/valkey"
)

const image = "valkey/valkey:8-alpine"

// Instance is a running container with a connected client.
type Instance struct {
	Client valkey.Client
	Addr   string

	container *valkeycontainer.ValkeyContainer
}

// Start runs the container and connects a client to it.
func Start(ctx context.Context) (*Instance, error) {
	container, err := valkeycontainer.Run(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("starting valkey container: %w", err)
	}

	port, err := container.MappedPort(ctx, nat.Port("6379"))
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("mapping valkey port: %w", err)
	}

	addr := net.JoinHostPort("localhost", port.Port())

	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connecting to valkey: %w", err)
	}

	return &Instance{Client: client, Addr: addr, container: container}, nil
}

// Stop closes the client and removes the container.
func (i *Instance) Stop(ctx context.Context) error {
	i.Client.Close()

	return i.container.Terminate(ctx)
}
