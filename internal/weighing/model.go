package weighing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// maxExactID is the largest integer a float64 carries without loss.
const maxExactID = 1 << 53

// ErrValidation marks input rejected at the boundary where records enter local storage.
var ErrValidation = errors.New("weighing: invalid record")

// ContainerType enumerates the supported weighing containers.
type ContainerType string

const (
	// ContainerTypeBin is a standard bin.
	ContainerTypeBin ContainerType = "bin"
	// ContainerTypeChingillo is a chingillo.
	ContainerTypeChingillo ContainerType = "chingillo"
)

// Valid reports whether the container type is known.
func (t ContainerType) Valid() bool {
	switch t {
	case ContainerTypeBin, ContainerTypeChingillo:
		return true
	default:
		return false
	}
}

// SyncStatus is carried by queued records only.
type SyncStatus string

const (
	// SyncStatusPending marks a queued record that has not failed yet.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusFailed marks a queued record whose last transmission failed.
	SyncStatusFailed SyncStatus = "failed"
)

// Container is a single bin or chingillo weighed within a record. NetWeight and Complete
// are derived from the weights and refreshed on every store read and write.
type Container struct {
	LocalID       string        `json:"localId,omitempty"`
	Code          string        `json:"code"`
	TareWeight    Number        `json:"tareWeight"`
	GrossWeight   *Number       `json:"grossWeight,omitempty"`
	NetWeight     *float64      `json:"netWeight,omitempty"`
	ContainerType ContainerType `json:"containerType"`
	Complete      bool          `json:"complete"`
}

// IsComplete reports whether the gross weight is known and exceeds the tare.
func (c Container) IsComplete() bool {
	if c.GrossWeight == nil {
		return false
	}
	return c.GrossWeight.Float64() > c.TareWeight.Float64()
}

// Net returns gross minus tare for complete containers.
func (c Container) Net() (float64, bool) {
	if !c.IsComplete() {
		return 0, false
	}
	return c.GrossWeight.Float64() - c.TareWeight.Float64(), true
}

// UnmarshalJSON implements json.Unmarshaler. The derived net weight may arrive as a string.
func (c *Container) UnmarshalJSON(data []byte) error {
	type plainContainer Container
	var decoded struct {
		plainContainer
		NetWeight *Number `json:"netWeight"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = Container(decoded.plainContainer)
	c.NetWeight = nil
	if decoded.NetWeight != nil {
		net := decoded.NetWeight.Float64()
		c.NetWeight = &net
	}
	return nil
}

func (c Container) refreshed() Container {
	out := c
	if c.GrossWeight != nil {
		out.GrossWeight = NewNumber(c.GrossWeight.Float64()).Pointer()
	}
	out.NetWeight = nil
	out.Complete = false
	if net, ok := c.Net(); ok {
		out.NetWeight = &net
		out.Complete = true
	}
	return out
}

// Record is a weighing operation, either a draft or a queued submission.
type Record struct {
	LocalID        string      `json:"localId,omitempty"`
	RemoteID       string      `json:"remoteId,omitempty"`
	Date           time.Time   `json:"date,omitzero"`
	FishType       string      `json:"fishType,omitempty"`
	UnitPrice      Number      `json:"unitPrice"`
	VesselID       *int64      `json:"vesselId,omitempty"`
	WorkerID       string      `json:"workerId,omitempty"`
	BuyerID        string      `json:"buyerId,omitempty"`
	Paid           bool        `json:"paid"`
	PaymentMethod  string      `json:"paymentMethod,omitempty"`
	Containers     []Container `json:"containers"`
	TotalNetWeight float64     `json:"totalNetWeight"`
	Subtotal       float64     `json:"subtotal"`
	Tax            float64     `json:"tax"`
	TotalWithTax   float64     `json:"totalWithTax"`
	CreatedAt      time.Time   `json:"createdAt,omitzero"`
	UpdatedAt      time.Time   `json:"updatedAt,omitzero"`
	SyncStatus     SyncStatus  `json:"syncStatus,omitempty"`
	LastError      string      `json:"lastError,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Form state may carry the vessel id and the
// derived totals as strings; both are coerced the same way as weights and prices.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plainRecord Record
	var decoded struct {
		plainRecord
		VesselID       json.RawMessage `json:"vesselId"`
		TotalNetWeight Number          `json:"totalNetWeight"`
		Subtotal       Number          `json:"subtotal"`
		Tax            Number          `json:"tax"`
		TotalWithTax   Number          `json:"totalWithTax"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	vesselID, err := decodeVesselID(decoded.VesselID)
	if err != nil {
		return err
	}
	*r = Record(decoded.plainRecord)
	r.VesselID = vesselID
	r.TotalNetWeight = decoded.TotalNetWeight.Float64()
	r.Subtotal = decoded.Subtotal.Float64()
	r.Tax = decoded.Tax.Float64()
	r.TotalWithTax = decoded.TotalWithTax.Float64()
	return nil
}

// decodeVesselID accepts integers, integral numeric strings, null and blank strings.
func decodeVesselID(raw json.RawMessage) (*int64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil && strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var number Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return nil, fmt.Errorf("vesselId: %w", err)
	}
	value := number.Float64()
	if value != math.Trunc(value) || math.Abs(value) > maxExactID {
		return nil, fmt.Errorf("%w: vesselId: %s is not an integer", ErrValidation, trimmed)
	}
	id := int64(value)
	return &id, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.VesselID != nil {
		vessel := *r.VesselID
		out.VesselID = &vessel
	}
	if r.Containers != nil {
		out.Containers = make([]Container, len(r.Containers))
		for i, container := range r.Containers {
			copied := container
			if container.GrossWeight != nil {
				copied.GrossWeight = container.GrossWeight.Pointer()
			}
			if container.NetWeight != nil {
				net := *container.NetWeight
				copied.NetWeight = &net
			}
			out.Containers[i] = copied
		}
	}
	return out
}

// Refresh returns a copy with every derived field recomputed from the weights and price.
func (r Record) Refresh() Record {
	out := r.Clone()
	out.UnitPrice = NewNumber(r.UnitPrice.Float64())
	if out.Containers == nil {
		out.Containers = []Container{}
	}
	for i, container := range out.Containers {
		out.Containers[i] = container.refreshed()
	}
	totals := ComputeTotals(out.Containers, out.UnitPrice.Float64())
	out.TotalNetWeight = totals.TotalNetWeight
	out.Subtotal = totals.Subtotal
	out.Tax = totals.Tax
	out.TotalWithTax = totals.TotalWithTax
	return out
}

// HasVessel reports whether the record references a vessel.
func (r Record) HasVessel() bool {
	return r.VesselID != nil
}

// CompleteContainers counts containers with a known gross weight.
func (r Record) CompleteContainers() int {
	count := 0
	for _, container := range r.Containers {
		if container.IsComplete() {
			count++
		}
	}
	return count
}
