package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/campuskiosk/kioskhub/internal/domain/job"
)

// EncodePayload checks that the payload struct matches the job type and
// marshals it for the jobs table.
func EncodePayload(t JobType, payload any) (json.RawMessage, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if !matchesType(t, payload) {
		return nil, ErrPayloadTypeMismatch
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return b, nil
}

func matchesType(t JobType, payload any) bool {
	switch t {
	case TypeReservationConfirmation:
		switch payload.(type) {
		case ReservationConfirmationPayload, *ReservationConfirmationPayload:
			return true
		}
	case TypeReservationCancellation:
		switch payload.(type) {
		case ReservationCancellationPayload, *ReservationCancellationPayload:
			return true
		}
	case TypeResetCodeEmail:
		switch payload.(type) {
		case ResetCodeEmailPayload, *ResetCodeEmailPayload:
			return true
		}
	case TypeSupplyReceipt:
		switch payload.(type) {
		case SupplyReceiptPayload, *SupplyReceiptPayload:
			return true
		}
	}
	return false
}

// DecodePayload unmarshals a stored job's payload into its typed struct.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	decode := func(dst any) (any, error) {
		if err := json.Unmarshal(j.Payload, dst); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return dst, nil
	}

	switch t {
	case TypeReservationConfirmation:
		v, err := decode(&ReservationConfirmationPayload{})
		if err != nil {
			return nil, err
		}
		return *v.(*ReservationConfirmationPayload), nil
	case TypeReservationCancellation:
		v, err := decode(&ReservationCancellationPayload{})
		if err != nil {
			return nil, err
		}
		return *v.(*ReservationCancellationPayload), nil
	case TypeResetCodeEmail:
		v, err := decode(&ResetCodeEmailPayload{})
		if err != nil {
			return nil, err
		}
		return *v.(*ResetCodeEmailPayload), nil
	case TypeSupplyReceipt:
		v, err := decode(&SupplyReceiptPayload{})
		if err != nil {
			return nil, err
		}
		return *v.(*SupplyReceiptPayload), nil
	default:
		return nil, ErrInvalidJobType
	}
}

// ValidatePayload rejects decoded payloads with missing required fields
// before the worker spends a send attempt on them.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}
	if !matchesType(t, payload) {
		return ErrPayloadTypeMismatch
	}

	blank := func(fields ...string) bool {
		for _, f := range fields {
			if strings.TrimSpace(f) == "" {
				return true
			}
		}
		return false
	}

	switch p := deref(payload).(type) {
	case ReservationConfirmationPayload:
		if blank(p.ReservationID, p.Email) {
			return ErrInvalidJobPayload
		}
	case ReservationCancellationPayload:
		if blank(p.ReservationID, p.Email) {
			return ErrInvalidJobPayload
		}
	case ResetCodeEmailPayload:
		if blank(p.Email, p.Code) || len(p.Code) != 6 {
			return ErrInvalidJobPayload
		}
	case SupplyReceiptPayload:
		if blank(p.RequestID, p.Email) || len(p.Items) == 0 {
			return ErrInvalidJobPayload
		}
	}
	return nil
}

func deref(payload any) any {
	switch v := payload.(type) {
	case *ReservationConfirmationPayload:
		return *v
	case *ReservationCancellationPayload:
		return *v
	case *ResetCodeEmailPayload:
		return *v
	case *SupplyReceiptPayload:
		return *v
	default:
		return payload
	}
}
