package domain

// Intent labels the business purpose of an inbound email.
type Intent string

const (
	IntentBankStatement  Intent = "bank_statement"
	IntentPasswordUpdate Intent = "password_update"
	IntentGeneralQuery   Intent = "general_query"
	IntentUrgentHuman    Intent = "urgent_human"
	IntentFallbackHuman  Intent = "fallback_human"
)

// Classification is the classifier's verdict for one message.
type Classification struct {
	Intent     Intent
	Confidence float64
	Entities   map[string]string
	Reasoning  string
}
