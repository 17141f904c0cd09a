// Package zeroconf advertises the codec control API as an mDNS/DNS-SD
// service so bring-up tools can find the board on the LAN.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

const serviceType = "_codecd._tcp"

// Info is published in the TXT record.
type Info struct {
	Version string
	Chip    string // hardware.ChipInfo.String(), empty if unknown
	Bus     string
}

// TXT returns the TXT record entries for info.
func (i Info) TXT() []string {
	txt := []string{"path=/api", "version=" + i.Version}
	if i.Chip != "" {
		txt = append(txt, "chip="+i.Chip)
	}
	if i.Bus != "" {
		txt = append(txt, "bus="+i.Bus)
	}
	return txt
}

// Service manages mDNS service registration.
type Service struct {
	name string // instance name, e.g. "codecd"
	port int
	info Info
}

// New creates a new zeroconf Service that will advertise on the given port.
func New(name string, port int, info Info) *Service {
	return &Service{
		name: name,
		port: port,
		info: info,
	}
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	txt := s.info.TXT()

	server, err := zeroconf.Register(
		s.name,      // instance name
		serviceType, // service type
		"local.",    // domain
		s.port,      // port
		txt,         // TXT records
		nil,         // ifaces; nil means all interfaces
	)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service",
		"name", s.name,
		"port", s.port,
		"txt", txt,
	)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}
