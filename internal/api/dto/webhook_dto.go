package dto

// GmailPushPayload is the envelope the mail provider posts to the webhook.
// The email itself travels base64-encoded in Message.Data.
type GmailPushPayload struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// AcceptedResponse acknowledges an ingestion submission.
type AcceptedResponse struct {
	Status   string `json:"status"`
	SourceID string `json:"source_id"`
}
