package jobs

import (
	"errors"
	"testing"

	"github.com/campuskiosk/kioskhub/internal/domain/job"
)

func TestEncodeDecodeReservationConfirmation(t *testing.T) {
	payload := ReservationConfirmationPayload{
		ReservationID: "res-123",
		RoomName:      "Study Room B",
		Date:          "2026-03-14",
		StartTime:     "23:00",
		EndTime:       "02:00",
		Email:         "kim@mavs.uta.edu",
		FullName:      "Kim Park",
	}

	raw, err := EncodePayload(TypeReservationConfirmation, payload)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	j := job.New(job.CreateRequest{
		Type:    string(TypeReservationConfirmation),
		Payload: raw,
	})

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(ReservationConfirmationPayload)
	if !ok {
		t.Fatalf("expected ReservationConfirmationPayload, got %T", decoded)
	}
	if p.ReservationID != payload.ReservationID || p.EndTime != payload.EndTime {
		t.Fatalf("round trip mismatch: %+v", p)
	}
}

func TestEncodePayloadTypeMismatch(t *testing.T) {
	_, err := EncodePayload(TypeResetCodeEmail, SupplyReceiptPayload{
		RequestID: "req-1",
		Email:     "a@uta.edu",
		Items:     []string{"Stapler"},
	})
	if !errors.Is(err, ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	j := job.New(job.CreateRequest{Type: "beverage.refill", Payload: []byte(`{}`)})
	if _, err := DecodePayload(j); !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestValidatePayload(t *testing.T) {
	cases := []struct {
		name    string
		jobType JobType
		payload any
		wantErr error
	}{
		{
			name:    "reset code ok",
			jobType: TypeResetCodeEmail,
			payload: ResetCodeEmailPayload{Email: "a@uta.edu", Code: "042519"},
		},
		{
			name:    "reset code wrong length",
			jobType: TypeResetCodeEmail,
			payload: ResetCodeEmailPayload{Email: "a@uta.edu", Code: "1234"},
			wantErr: ErrInvalidJobPayload,
		},
		{
			name:    "confirmation missing email",
			jobType: TypeReservationConfirmation,
			payload: ReservationConfirmationPayload{ReservationID: "res-1"},
			wantErr: ErrInvalidJobPayload,
		},
		{
			name:    "receipt without items",
			jobType: TypeSupplyReceipt,
			payload: SupplyReceiptPayload{RequestID: "req-1", Email: "a@uta.edu"},
			wantErr: ErrInvalidJobPayload,
		},
		{
			name:    "pointer payload accepted",
			jobType: TypeSupplyReceipt,
			payload: &SupplyReceiptPayload{RequestID: "req-1", Email: "a@uta.edu", Items: []string{"Tape"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayload(tc.jobType, tc.payload)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
