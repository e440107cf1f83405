package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/navipesca/weighsync/internal/weighing"
	"github.com/spf13/cast"
)

// ContainerPayload is a weighed container as the backend receives it.
type ContainerPayload struct {
	Code          string                 `json:"codigo"`
	GrossWeight   weighing.Number        `json:"pesoBruto"`
	TareWeight    weighing.Number        `json:"pesoTara"`
	NetWeight     weighing.Number        `json:"pesoNeto"`
	ContainerType weighing.ContainerType `json:"tipoContenedor"`
}

// RecordPayload is the body of a record creation request. It carries no local identifiers
// or bookkeeping fields.
type RecordPayload struct {
	Date           time.Time          `json:"fecha"`
	FishType       string             `json:"tipoPez"`
	UnitPrice      weighing.Number    `json:"precioUnitario"`
	VesselID       int64              `json:"embarcacionId"`
	WorkerID       string             `json:"trabajadorId"`
	BuyerID        string             `json:"compradorId"`
	TotalNetWeight weighing.Number    `json:"totalKilos"`
	Subtotal       weighing.Number    `json:"totalSinIVA"`
	Tax            weighing.Number    `json:"iva"`
	TotalWithTax   weighing.Number    `json:"totalConIVA"`
	Paid           bool               `json:"pagado"`
	PaymentMethod  *string            `json:"metodoPago"`
	Containers     []ContainerPayload `json:"bins"`
}

// PayloadDefaults fills the fields a locally captured record may leave empty.
type PayloadDefaults struct {
	Operator string
	Now      time.Time
}

// BuildPayload strips the local-only fields of record and normalizes its numbers. Only
// complete containers are transmitted and the totals are recomputed from them.
func BuildPayload(record weighing.Record, defaults PayloadDefaults) (RecordPayload, error) {
	normalized := record.Refresh()
	if err := normalized.ValidateSubmittable(); err != nil {
		return RecordPayload{}, err
	}

	containers := make([]ContainerPayload, 0, len(normalized.Containers))
	for _, container := range normalized.Containers {
		net, ok := container.Net()
		if !ok {
			continue
		}
		containers = append(containers, ContainerPayload{
			Code:          strings.TrimSpace(container.Code),
			GrossWeight:   weighing.NewNumber(container.GrossWeight.Float64()),
			TareWeight:    weighing.NewNumber(container.TareWeight.Float64()),
			NetWeight:     weighing.NewNumber(net),
			ContainerType: container.ContainerType,
		})
	}

	date := normalized.Date
	if date.IsZero() {
		date = defaults.Now
	}
	var paymentMethod *string
	if method := strings.TrimSpace(normalized.PaymentMethod); method != "" {
		paymentMethod = &method
	}

	return RecordPayload{
		Date:           date.UTC(),
		FishType:       strings.TrimSpace(normalized.FishType),
		UnitPrice:      normalized.UnitPrice,
		VesselID:       *normalized.VesselID,
		WorkerID:       firstNonBlank(normalized.WorkerID, defaults.Operator),
		BuyerID:        firstNonBlank(normalized.BuyerID, defaults.Operator),
		TotalNetWeight: weighing.NewNumber(normalized.TotalNetWeight),
		Subtotal:       weighing.NewNumber(normalized.Subtotal),
		Tax:            weighing.NewNumber(normalized.Tax),
		TotalWithTax:   weighing.NewNumber(normalized.TotalWithTax),
		Paid:           normalized.Paid,
		PaymentMethod:  paymentMethod,
		Containers:     containers,
	}, nil
}

// RemoteID is a backend identifier. The backend emits numeric ids; strings are accepted too.
type RemoteID string

func (id *RemoteID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	if number, ok := raw.(json.Number); ok {
		*id = RemoteID(number.String())
		return nil
	}
	value, err := cast.ToStringE(raw)
	if err != nil {
		return fmt.Errorf("remote: invalid id %s: %w", string(trimmed), err)
	}
	*id = RemoteID(value)
	return nil
}

// Vessel is an embarcación registered on the backend.
type Vessel struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// RemoteRecord is a record as returned by the backend.
type RemoteRecord struct {
	ID RemoteID `json:"id"`
	RecordPayload
	Vessel *Vessel `json:"embarcacion,omitempty"`
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
