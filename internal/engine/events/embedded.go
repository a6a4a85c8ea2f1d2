package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog/log"
)

// Embedded is an in-process NATS broker for single-node deployments.
type Embedded struct {
	ns *server.Server
}

// StartEmbedded runs a NATS server on host:port. Port -1 picks a free one.
func StartEmbedded(host string, port int) (*Embedded, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready for connections")
	}
	log.Info().Str("url", ns.ClientURL()).Msg("embedded nats started")
	return &Embedded{ns: ns}, nil
}

func (e *Embedded) ClientURL() string {
	return e.ns.ClientURL()
}

func (e *Embedded) Shutdown() {
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
