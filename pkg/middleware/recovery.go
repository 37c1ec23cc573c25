package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"project-hub-backend/pkg/config"
	"project-hub-backend/pkg/logger"
	"project-hub-backend/pkg/utils"
)

// Recovery turns a panic into a 500 envelope. The panic value and stack are
// only sent to the client in development.
func Recovery(cfg *config.Config, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := debug.Stack()
				logger.WithRequest(r.Context(), log).Error("Panic while handling request",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", stack),
				)

				resp := utils.APIResponse{Success: false, Message: "Internal server error occurred"}
				if cfg.IsDevelopment() {
					resp.Error = fmt.Sprintf("%v", rec)
					resp.Stack = string(stack)
				}
				utils.WriteJSON(w, http.StatusInternalServerError, resp)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
