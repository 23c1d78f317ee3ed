package cardswipe_test

import (
	"errors"
	"testing"

	"github.com/campuskiosk/kioskhub/internal/cardswipe"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "track 2 institutional id",
			raw:  ";6391234567890123=2512101?",
			want: "6391234567890123",
		},
		{
			name: "track 3 wins over track 2",
			raw:  ";6391234567890123=2512101?+6000012345?",
			want: "6000012345",
		},
		{
			name: "track 1 with format code",
			raw:  "%B6000012345^DOE/JANE^2512?",
			want: "6000012345",
		},
		{
			name: "track 1 without format code",
			raw:  "%6000012345^DOE/JANE^2512?",
			want: "6000012345",
		},
		{
			name: "leading zeros preserved",
			raw:  ";0001234567=2512?",
			want: "0001234567",
		},
		{
			name:    "visa prefix rejected",
			raw:     ";4111111111111111=2512101?",
			wantErr: cardswipe.ErrPaymentCard,
		},
		{
			name:    "mastercard prefix rejected",
			raw:     ";5412345678901234=2512101?",
			wantErr: cardswipe.ErrPaymentCard,
		},
		{
			name:    "amex prefix rejected",
			raw:     "%B371234567890123^DOE/JANE^2512?",
			wantErr: cardswipe.ErrPaymentCard,
		},
		{
			name:    "garbage input",
			raw:     "hello world",
			wantErr: cardswipe.ErrNoTrackMatch,
		},
		{
			name:    "empty input",
			raw:     "   ",
			wantErr: cardswipe.ErrNoTrackMatch,
		},
		{
			name:    "too few digits for any track",
			raw:     ";1234=99?",
			wantErr: cardswipe.ErrNoTrackMatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cardswipe.Extract(tc.raw)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Extract(%q) err = %v, want %v", tc.raw, err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Extract(%q) unexpected error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("Extract(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestIsPaymentCard(t *testing.T) {
	reject := []string{"4111111111111111", "5500005555555559", "340000000000009", "370000000000002", "5105105105105100"}
	for _, d := range reject {
		if !cardswipe.IsPaymentCard(d) {
			t.Errorf("IsPaymentCard(%q) = false, want true", d)
		}
	}

	accept := []string{"6391234567890123", "0001234567", "100200300", "98765432"}
	for _, d := range accept {
		if cardswipe.IsPaymentCard(d) {
			t.Errorf("IsPaymentCard(%q) = true, want false", d)
		}
	}
}
