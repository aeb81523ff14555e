package model

import "time"

// ContainerState is the lifecycle state of a provisioned container.
//
// Transitions:
//
//	provisioning → running ⇄ stopped
//	provisioning → failed (terminal)
//
// A record leaves the catalog only through a successful delete. A failed
// record holds no port and no runtime container; it exists so that a caller
// polling after an asynchronous create can observe the outcome.
type ContainerState string

const (
	StateProvisioning ContainerState = "provisioning"
	StateRunning      ContainerState = "running"
	StateStopped      ContainerState = "stopped"
	StateFailed       ContainerState = "failed"
)

// Active reports whether the state counts against the owner's plan limit.
func (s ContainerState) Active() bool {
	return s != StateFailed
}

// GiB is the unit pricing is quoted in.
const GiB = 1024 * 1024 * 1024

// Pricing constants, in credits.
const (
	memoryCostPerGiB = 2
	memoryCostBase   = 2
	swapCostPerGiB   = 1
	swapCostBase     = 1
	costPerCPUCore   = 15
)

// ResourceSpec is the memory/swap/CPU allocation requested for a container.
// It is immutable once attached to a Container record.
type ResourceSpec struct {
	MemoryBytes     int64 `json:"memory"`
	MemorySwapBytes int64 `json:"memorySwap"`
	CPUCores        int64 `json:"cpuCores"`
	CPUShares       int64 `json:"cpuShares"`
}

// Price returns the credit cost of running a container with this spec.
//
// Partial GiBs are not billed (integer division), so every spec costs at
// least the base 2+1 plus 15 per CPU core. There is no zero-cost tier.
func (r ResourceSpec) Price() int64 {
	memory := r.MemoryBytes/GiB*memoryCostPerGiB + memoryCostBase
	swap := r.MemorySwapBytes/GiB*swapCostPerGiB + swapCostBase
	cpu := r.CPUCores * costPerCPUCore
	return memory + swap + cpu
}

// Container is the catalog record for a provisioned workload.
//
// RuntimeID is empty while the container is still provisioning or after
// provisioning failed; Port is the leased host port mapped to the workload.
// Name is unique per owner, not globally.
type Container struct {
	RuntimeID string         `json:"runtimeId,omitempty"`
	Owner     string         `json:"-"`
	Name      string         `json:"name"`
	Resources ResourceSpec   `json:"resources"`
	Port      int            `json:"port,omitempty"`
	State     ContainerState `json:"state"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
