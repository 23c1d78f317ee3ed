package notifications

import (
	"fmt"
	"strings"

	"github.com/campuskiosk/kioskhub/internal/calendar"
	"github.com/campuskiosk/kioskhub/internal/domain/reservation"
	"github.com/campuskiosk/kioskhub/internal/jobs"
)

// Renderers turn job payloads into plain-text messages. Kiosk mail stays
// text-only; the add-to-calendar links carry the rich part.

func RenderReservationConfirmation(p jobs.ReservationConfirmationPayload, baseURL string) (Message, error) {
	date, err := reservation.ParseDate(p.Date)
	if err != nil {
		return Message{}, err
	}
	window, err := reservation.Normalize(date, p.StartTime, p.EndTime)
	if err != nil {
		return Message{}, err
	}

	detailsURL := ""
	if baseURL != "" {
		detailsURL = strings.TrimRight(baseURL, "/") + "/reservations/" + p.ReservationID
	}
	links := calendar.BuildLinks(p.RoomName, window.From, window.To, detailsURL)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstName(p.FullName))
	fmt.Fprintf(&b, "Your reservation is confirmed.\n\n")
	fmt.Fprintf(&b, "Room:  %s\n", p.RoomName)
	fmt.Fprintf(&b, "Date:  %s\n", p.Date)
	fmt.Fprintf(&b, "Time:  %s to %s\n\n", p.StartTime, p.EndTime)
	fmt.Fprintf(&b, "Add to Google Calendar: %s\n", links.Google)
	fmt.Fprintf(&b, "Add to Outlook: %s\n\n", links.Outlook)
	b.WriteString("Apple Calendar users: open the attached .ics file.\n\n")
	b.WriteString(calendar.ICS(p.RoomName, window.From, window.To, p.ReservationID, p.Email))

	return Message{
		To:      p.Email,
		ToName:  p.FullName,
		Subject: fmt.Sprintf("Reservation confirmed: %s on %s", p.RoomName, p.Date),
		Body:    b.String(),
	}, nil
}

func RenderReservationCancellation(p jobs.ReservationCancellationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstName(p.FullName))
	fmt.Fprintf(&b, "Your reservation for %s on %s (%s to %s) has been cancelled.\n",
		p.RoomName, p.Date, p.StartTime, p.EndTime)
	if p.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s\n", p.Reason)
	}
	b.WriteString("\nIf this was unexpected, book a new slot at the kiosk.\n")

	return Message{
		To:      p.Email,
		ToName:  p.FullName,
		Subject: fmt.Sprintf("Reservation cancelled: %s on %s", p.RoomName, p.Date),
		Body:    b.String(),
	}
}

func RenderResetCode(p jobs.ResetCodeEmailPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstName(p.FullName))
	fmt.Fprintf(&b, "Your one-time sign-in code is: %s\n\n", p.Code)
	b.WriteString("Enter it in the password field at the kiosk. The code works once\n")
	b.WriteString("and expires in 10 minutes. If you did not request it, ignore this email.\n")

	return Message{
		To:      p.Email,
		ToName:  p.FullName,
		Subject: "Your kiosk sign-in code",
		Body:    b.String(),
	}
}

func RenderSupplyReceipt(p jobs.SupplyReceiptPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstName(p.FullName))
	b.WriteString("We received your supply request for:\n\n")
	for _, item := range p.Items {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	b.WriteString("\nFacilities will restock shortly.\n")

	return Message{
		To:      p.Email,
		ToName:  p.FullName,
		Subject: "Supply request received",
		Body:    b.String(),
	}
}

// RenderSupplyFacilitiesCopy is the restock notice sent to the facilities
// mailbox alongside the requester's receipt.
func RenderSupplyFacilitiesCopy(p jobs.SupplyReceiptPayload, inbox string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) requested:\n\n", p.FullName, p.Email)
	for _, item := range p.Items {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	fmt.Fprintf(&b, "\nRequest id: %s\n", p.RequestID)

	return Message{
		To:      inbox,
		ToName:  "Facilities",
		Subject: fmt.Sprintf("Supply request from %s", p.FullName),
		Body:    b.String(),
	}
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return "there"
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
