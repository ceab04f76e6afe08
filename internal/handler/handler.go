// Package handler exposes the catalog and order lifecycle over HTTP.
package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shop-orders/internal/catalog"
	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/domain/product"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Handler serves the storefront API, delegating lifecycle rules to the order
// service and listing products from the catalog repository.
type Handler struct {
	products product.Repository
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, orders *order.Service) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.ListProducts)
	r.Post("/order", h.CreateOrder)
	r.Get("/order/{id}", h.GetOrder)
	r.Put("/order/{id}", h.UpdateOrder)
}

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	catalog.EncodeProducts(e, products)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// CreateOrder places an order and redirects to it.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeCreate(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	location := "/order/" + strconv.FormatInt(o.ID, 10)
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("Location")
	e.Str(location)
	e.ObjEnd()

	w.Header().Set("Location", location)
	writeJSON(w, http.StatusFound, e.Bytes())
}

// GetOrder returns the order projection.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeError(w, r, errOrderNotFound)
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, o)
}

// UpdateOrder either sets the customer's shipping details or pays the order,
// depending on which object the body carries.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeError(w, r, errOrderNotFound)
		return
	}

	data, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeUpdate(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var o *order.Order
	if req.payment != nil {
		o, err = h.orders.Pay(r.Context(), id, *req.payment)
	} else {
		o, err = h.orders.UpdateShipping(r.Context(), id, *req.shipping)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, o)
}

var errOrderNotFound = order.NotFoundError(order.ResourceOrder, order.CodeNotFound, "order does not exist")

func orderID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

func writeOrder(w http.ResponseWriter, o *order.Order) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrder(e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
