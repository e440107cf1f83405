package weighing

import (
	"fmt"
	"strings"
)

// Validate checks the structural invariants every stored record must satisfy. Drafts may
// still lack fish type, vessel and gross weights.
func (r Record) Validate() error {
	if r.UnitPrice.Float64() < 0 {
		return fmt.Errorf("%w: unit price must not be negative", ErrValidation)
	}
	if r.VesselID != nil && *r.VesselID <= 0 {
		return fmt.Errorf("%w: vessel id must be positive", ErrValidation)
	}
	for i, container := range r.Containers {
		if err := container.validate(); err != nil {
			return fmt.Errorf("%w (container %d)", err, i)
		}
	}
	return nil
}

// ValidateSubmittable checks that the record can be transmitted to the backend.
func (r Record) ValidateSubmittable() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.FishType) == "" {
		return fmt.Errorf("%w: fish type is required", ErrValidation)
	}
	if r.VesselID == nil {
		return fmt.Errorf("%w: vessel is required", ErrValidation)
	}
	if r.UnitPrice.Float64() <= 0 {
		return fmt.Errorf("%w: unit price must be positive", ErrValidation)
	}
	if r.CompleteContainers() == 0 {
		return fmt.Errorf("%w: at least one weighed container is required", ErrValidation)
	}
	return nil
}

func (c Container) validate() error {
	if !c.ContainerType.Valid() {
		return fmt.Errorf("%w: unknown container type %q", ErrValidation, c.ContainerType)
	}
	tare := c.TareWeight.Float64()
	if tare <= 0 {
		return fmt.Errorf("%w: tare weight must be positive", ErrValidation)
	}
	if c.GrossWeight == nil {
		return nil
	}
	if c.GrossWeight.Float64() <= tare {
		return fmt.Errorf("%w: gross weight must exceed tare weight", ErrValidation)
	}
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%w: weighed container requires a code", ErrValidation)
	}
	return nil
}
