package middlewares

const (
	CtxRequestID = "request_id"

	// set by RequireSession after cookie verification
	CtxUserID    = "session.userID"
	CtxSessionID = "session.id"
	CtxTokenHash = "session.tokenHash"
)
