package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery turns a panic into a 500 response in the API error format and logs
// it with a stack trace. lg is used when the request carries no logger yet.
func Recovery(lg *zap.Logger) Middleware {
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

				l := lg
				if ctxLg := zctx.From(r.Context()); ctxLg != nil && ctxLg.Core().Enabled(zap.ErrorLevel) {
					l = ctxLg
				}
				l.Error("Panic recovered",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)

				w.Header().Set("Connection", "close")
				WriteError(w, http.StatusInternalServerError, "internal-error", "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes {"errors": {"server": {"code", "name"}}} with status.
func WriteError(w http.ResponseWriter, status int, code, name string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("errors")
	e.ObjStart()
	e.FieldStart("server")
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("name")
	e.Str(name)
	e.ObjEnd()
	e.ObjEnd()
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
