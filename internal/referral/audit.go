package referral

import (
	"encoding/json"
	"log"
	"regexp"

	"aura-bot/internal/models"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-()]{8,}\d`)
)

// RedactPII masks e-mail addresses and phone numbers before a payload hits
// the audit trail.
func RedactPII(s string) string {
	s = emailRe.ReplaceAllString(s, "[email]")
	s = phoneRe.ReplaceAllString(s, "[phone]")
	return s
}

func encodePayload(payload map[string]string) string {
	if len(payload) == 0 {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return RedactPII(string(data))
}

// logEvent appends to the audit trail. Auditing is best-effort and never
// fails the operation that produced the event.
func (e *Engine) logEvent(userID uint, event string, payload map[string]string) {
	row := models.EventLog{
		UserID:  userID,
		Event:   event,
		Payload: encodePayload(payload),
	}
	if err := e.DB.Create(&row).Error; err != nil {
		log.Printf("Failed to log event %s for user %d: %v", event, userID, err)
	}
}
