package handlers

import (
	"net/http"

	"authgate/internal/gateway/middlewares"

	"github.com/gin-gonic/gin"
)

// Error bodies use the flat detail/code envelope the client parses:
// {"detail": "...", "code": "...", "request_id": "..."}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get(middlewares.CtxRequestID)

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, detail string, fields interface{}) {
	body := gin.H{
		"detail":     detail,
		"code":       code,
		"request_id": requestIDFrom(ctx),
	}

	if fields != nil {
		body["fields"] = fields
	}

	ctx.JSON(status, body)
}

func RespondBadRequest(ctx *gin.Context, detail string, fields interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", detail, fields)
}

func RespondUnauthorized(ctx *gin.Context, code, detail string) {
	RespondError(ctx, http.StatusUnauthorized, code, detail, nil)
}

func RespondInternal(ctx *gin.Context, detail string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", detail, nil)
}
