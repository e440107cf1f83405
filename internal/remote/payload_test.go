package remote

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/navipesca/weighsync/internal/weighing"
)

func weighedRecord() weighing.Record {
	vessel := int64(7)
	return weighing.Record{
		LocalID:    "offline-1",
		RemoteID:   "stale",
		FishType:   " jurel ",
		UnitPrice:  1000,
		VesselID:   &vessel,
		SyncStatus: weighing.SyncStatusFailed,
		LastError:  "timeout",
		CreatedAt:  time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC),
		Containers: []weighing.Container{
			{LocalID: "bin-B1-1", Code: "B1", TareWeight: 20, GrossWeight: weighing.NewNumber(100).Pointer(), ContainerType: weighing.ContainerTypeBin},
			{LocalID: "bin-B2-2", Code: "B2", TareWeight: 10, ContainerType: weighing.ContainerTypeChingillo},
		},
		TotalWithTax: 1,
	}
}

func TestBuildPayloadStripsLocalFields(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	payload, err := BuildPayload(weighedRecord(), PayloadDefaults{Operator: "Rosa", Now: now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if payload.FishType != "jurel" || payload.VesselID != 7 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.WorkerID != "Rosa" || payload.BuyerID != "Rosa" {
		t.Fatalf("expected operator defaults, got %q/%q", payload.WorkerID, payload.BuyerID)
	}
	if !payload.Date.Equal(now) {
		t.Fatalf("expected date to default to now, got %v", payload.Date)
	}
	if len(payload.Containers) != 1 || payload.Containers[0].NetWeight.Float64() != 80 {
		t.Fatalf("expected only the complete container, got %#v", payload.Containers)
	}
	if payload.TotalWithTax.Float64() != 95200 || payload.Tax.Float64() != 15200 {
		t.Fatalf("expected recomputed totals, got %v/%v", payload.Tax, payload.TotalWithTax)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := string(encoded)
	for _, forbidden := range []string{"localId", "offline-1", "createdAt", "syncStatus", "stale", "bin-B1-1"} {
		if strings.Contains(body, forbidden) {
			t.Fatalf("payload leaks %q: %s", forbidden, body)
		}
	}
	for _, required := range []string{`"tipoPez":"jurel"`, `"precioUnitario":1000`, `"embarcacionId":7`, `"totalConIVA":95200`, `"pagado":false`, `"metodoPago":null`, `"codigo":"B1"`} {
		if !strings.Contains(body, required) {
			t.Fatalf("payload missing %s: %s", required, body)
		}
	}
}

func TestBuildPayloadKeepsExplicitParticipants(t *testing.T) {
	record := weighedRecord()
	record.WorkerID = "Luis"
	record.BuyerID = "Pesquera Sur"
	record.PaymentMethod = "transferencia"
	record.Date = time.Date(2026, 9, 29, 0, 0, 0, 0, time.UTC)

	payload, err := BuildPayload(record, PayloadDefaults{Operator: "Rosa", Now: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.WorkerID != "Luis" || payload.BuyerID != "Pesquera Sur" {
		t.Fatalf("unexpected participants %q/%q", payload.WorkerID, payload.BuyerID)
	}
	if payload.PaymentMethod == nil || *payload.PaymentMethod != "transferencia" {
		t.Fatalf("unexpected payment method %v", payload.PaymentMethod)
	}
	if !payload.Date.Equal(record.Date) {
		t.Fatalf("expected record date to be kept")
	}
}

func TestBuildPayloadRejectsIncompleteRecords(t *testing.T) {
	record := weighedRecord()
	record.Containers[0].GrossWeight = nil
	if _, err := BuildPayload(record, PayloadDefaults{}); !errors.Is(err, weighing.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRemoteIDDecoding(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    RemoteID
		wantErr bool
	}{
		{name: "number", input: `{"id":42}`, want: "42"},
		{name: "string", input: `{"id":"abc-1"}`, want: "abc-1"},
		{name: "null", input: `{"id":null}`, want: ""},
		{name: "object", input: `{"id":{"x":1}}`, wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var decoded struct {
				ID RemoteID `json:"id"`
			}
			err := json.Unmarshal([]byte(testCase.input), &decoded)
			if testCase.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decoded.ID != testCase.want {
				t.Fatalf("expected %q, got %q", testCase.want, decoded.ID)
			}
		})
	}
}
