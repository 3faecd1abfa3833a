package delivery

import "strings"

const (
	WorkflowName    = "attribution.delivery"
	ActivityProcess = "attribution.process_delivery"
)

// WorkflowID is stable per delivery so redelivered webhooks collapse onto one run.
func WorkflowID(provider, deliveryKey string) string {
	return "delivery:" + strings.TrimSpace(provider) + ":" + strings.TrimSpace(deliveryKey)
}
