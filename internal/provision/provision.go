// Package provision abstracts the infrastructure control plane that scaling
// decisions are applied through. The scaler only ever changes its instance
// counter after the provisioner reports success.
package provision

import (
	"context"
	"fmt"
	"log"
)

// Provisioner applies a scaling delta to real (or simulated) capacity.
// Count is always the number of instances to add or remove, never a target.
type Provisioner interface {
	Provision(ctx context.Context, count int) error
	Deprovision(ctx context.Context, count int) error
}

// Static is a no-infrastructure provisioner: it accepts every request and
// keeps a running tally. Used in simulate mode and when no control plane is
// configured. Load-balancer updates, service discovery and connection
// draining are out of scope here; attach an SSH provisioner (or your own
// Provisioner) to reach real capacity.
type Static struct {
	provisioned   int
	deprovisioned int
}

// NewStatic returns an empty Static provisioner.
func NewStatic() *Static {
	return &Static{}
}

// Provision records count added instances.
func (p *Static) Provision(_ context.Context, count int) error {
	if count <= 0 {
		return fmt.Errorf("provision count must be positive, got %d", count)
	}
	p.provisioned += count
	log.Printf("[provision] +%d instances (static, no control plane attached)", count)
	return nil
}

// Deprovision records count removed instances.
func (p *Static) Deprovision(_ context.Context, count int) error {
	if count <= 0 {
		return fmt.Errorf("deprovision count must be positive, got %d", count)
	}
	p.deprovisioned += count
	log.Printf("[provision] -%d instances (static, no control plane attached)", count)
	return nil
}

// Totals returns the cumulative provisioned and deprovisioned counts.
func (p *Static) Totals() (added, removed int) {
	return p.provisioned, p.deprovisioned
}
