// Package calendar builds add-to-calendar artifacts for confirmed
// reservations: Google and Outlook compose links plus an RFC 5545 ICS
// body for everything else.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Campus wall clock. Links and ICS events carry this zone explicitly so the
// times survive whoever opens them.
const Timezone = "America/Chicago"

const stampLayout = "20060102T150405"

type Links struct {
	Google  string `json:"google"`
	Outlook string `json:"outlook"`
}

// BuildLinks renders Google and Outlook compose URLs for a reservation
// window. Both carry local wall-clock times with the campus zone attached.
func BuildLinks(roomName string, start, end time.Time, detailsURL string) Links {
	title := fmt.Sprintf("Room Reservation: %s", roomName)
	desc := "Reserved via the campus kiosk."
	if detailsURL != "" {
		desc += " Details: " + detailsURL
	}

	google := "https://calendar.google.com/calendar/render?action=TEMPLATE" +
		"&text=" + url.QueryEscape(title) +
		"&dates=" + start.Format(stampLayout) + "/" + end.Format(stampLayout) +
		"&ctz=" + Timezone +
		"&details=" + url.QueryEscape(desc) +
		"&location=" + url.QueryEscape(roomName)

	outlook := "https://outlook.live.com/calendar/0/deeplink/compose?" +
		"subject=" + url.QueryEscape(title) +
		"&startdt=" + url.QueryEscape(start.Format(time.RFC3339)) +
		"&enddt=" + url.QueryEscape(end.Format(time.RFC3339)) +
		"&body=" + url.QueryEscape(desc) +
		"&location=" + url.QueryEscape(roomName)

	return Links{Google: google, Outlook: outlook}
}

// ICS renders a single-event calendar file. DTSTAMP must be UTC per the RFC;
// the event times stay local with an explicit TZID.
func ICS(roomName string, start, end time.Time, reservationID, organizerEmail string) string {
	var b strings.Builder

	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("CALSCALE:GREGORIAN")
	line("METHOD:PUBLISH")
	line("PRODID:-//Campus Kiosk//EN")
	line("BEGIN:VEVENT")
	line("UID:" + reservationID + "@campuskiosk")
	line("DTSTAMP:" + time.Now().UTC().Format(stampLayout) + "Z")
	line("DTSTART;TZID=" + Timezone + ":" + start.Format(stampLayout))
	line("DTEND;TZID=" + Timezone + ":" + end.Format(stampLayout))
	line("SUMMARY:" + escapeText(fmt.Sprintf("Room Reservation (%s)", roomName)))
	line("DESCRIPTION:" + escapeText(fmt.Sprintf("Your reservation for %s is confirmed.", roomName)))
	line("ORGANIZER:mailto:" + organizerEmail)
	line("END:VEVENT")
	line("END:VCALENDAR")

	return b.String()
}

// escapeText applies RFC 5545 TEXT escaping.
func escapeText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}
