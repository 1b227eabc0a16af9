package intake

// Error codes attached to failures surfaced by the intake domain.
const (
	CodeInvalidInput      = "invalid_input"
	CodeAuthorization     = "authorization_error"
	CodeNetwork           = "network_error"
	CodeDataFormat        = "data_format_error"
	CodeSourceUnavailable = "source_unavailable"
	CodePersistence       = "persistence_error"
)
