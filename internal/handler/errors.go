package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/order"
)

// writeError renders err as {"errors": {resource: {"code", "name"}}}. Gateway
// errors carrying the gateway's own document forward it unchanged. Errors that
// are not lifecycle errors become a logged 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lerr, ok := order.AsError(err)
	if !ok {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeErrorBody(w, http.StatusInternalServerError, "server", "internal-error", "internal server error")
		return
	}

	status := http.StatusUnprocessableEntity
	if lerr.Kind == order.KindNotFound {
		status = http.StatusNotFound
	}

	if lerr.Kind == order.KindGateway && len(lerr.Body) > 0 {
		writeJSON(w, status, lerr.Body)
		return
	}
	writeErrorBody(w, status, lerr.Resource, lerr.Code, lerr.Name)
}

func writeErrorBody(w http.ResponseWriter, status int, resource, code, name string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("errors")
	e.ObjStart()
	e.FieldStart(resource)
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("name")
	e.Str(name)
	e.ObjEnd()
	e.ObjEnd()
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}
