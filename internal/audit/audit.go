package audit

import (
	"log"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	EventLogin            EventType = "login"
	EventLoginFailed      EventType = "login_failed"
	EventUserCreated      EventType = "user_created"
	EventTaskCreated      EventType = "task_created"
	EventTaskCancelled    EventType = "task_cancelled"
	EventAuctionStarted   EventType = "auction_started"
	EventAuctionCancelled EventType = "auction_cancelled"
	EventAgentEnrolled    EventType = "agent_enrolled"
	EventAgentDeactivated EventType = "agent_deactivated"
	EventAPIKeyReset      EventType = "api_key_reset"
)

// Log records an audit event
// In production, this should write to a database or external audit service
func Log(eventType EventType, userID, targetID string, details map[string]interface{}) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	// For now, log to stdout. In production, store in DB or send to audit service
	log.Printf("AUDIT [%s] event=%s user=%s target=%s details=%v",
		timestamp, eventType, userID, targetID, details)
}

// LogWithIP records an audit event with IP address
func LogWithIP(eventType EventType, userID, targetID, ip string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["ip"] = ip
	Log(eventType, userID, targetID, details)
}
