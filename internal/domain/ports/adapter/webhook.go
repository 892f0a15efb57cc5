package adapter

import "ai-credit-metering/internal/domain/model"

// WebhookCodec verifies and decodes raw gateway notifications. Verification
// operates on the exact bytes received; re-encoding the body before
// verification breaks the signature.
type WebhookCodec interface {
	VerifySignature(payload []byte, signature string) bool
	ParseEvent(payload []byte) (*model.GatewayEvent, error)
}
