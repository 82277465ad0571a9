package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
)

const maxBodyBytes = 1 << 20

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	entries, err := h.catalog.List(r.Context(), auth.CallerFrom(r.Context()), catalog.ListFilter{
		CategoryID:  query.Get("category"),
		SupplierID:  query.Get("supplier"),
		State:       domain.CatalogState(query.Get("state")),
		InStockOnly: query.Get("in_stock") == "true",
		Mine:        query.Get("mine") == "true",
		Limit:       limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryList(entries))
}

func (h *Handler) featured(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalog.Featured(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryView(entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalog.Get(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryView(entry))
}

func (h *Handler) listCategory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.catalog.ListByCategory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryList(entries))
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.taxonomy.ListCategories(r.Context(), r.URL.Query().Get("parent"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryList(categories))
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.taxonomy.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryView(category))
}

func (h *Handler) listDeliveryModes(w http.ResponseWriter, r *http.Request) {
	modes, err := h.taxonomy.ListDeliveryModes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view := DeliveryModeListView{DeliveryModes: make([]DeliveryModeView, 0, len(modes))}
	for _, mode := range modes {
		view.DeliveryModes = append(view.DeliveryModes, DeliveryModeView{
			ID:      mode.ID,
			Name:    mode.Name,
			Kind:    mode.Kind,
			Details: mode.Details,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.View(r.Context(), auth.CallerFrom(r.Context()), cartSession(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(auth.CallerFrom(r.Context()), cartSession(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.AddItem(auth.CallerFrom(r.Context()), cartSession(r), strings.TrimSpace(req.EntryID), req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	h.viewCart(w, r)
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.SetQuantity(auth.CallerFrom(r.Context()), cartSession(r), chi.URLParam(r, "id"), req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	h.viewCart(w, r)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveItem(auth.CallerFrom(r.Context()), cartSession(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.viewCart(w, r)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	sessionID := cartSession(r)
	h.idempotent(w, r, "cart.checkout", sessionID, func(ctx context.Context) (int, any, error) {
		result, err := h.carts.Checkout(ctx, auth.CallerFrom(ctx), sessionID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, toCheckoutView(result), nil
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.ListMine(r.Context(), auth.CallerFrom(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view := OrderListView{Orders: make([]OrderView, 0, len(orders))}
	for _, order := range orders {
		view.Orders = append(view.Orders, toOrderView(order, nil))
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.orders.Get(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(view.Order, view.Timeline))
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	h.idempotent(w, r, "orders.pay", orderID, func(ctx context.Context) (int, any, error) {
		receipt, err := h.orders.Pay(ctx, auth.CallerFrom(ctx), orderID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, ReceiptView{
			OrderID:   receipt.OrderID,
			Total:     receipt.Total,
			Reference: receipt.Reference,
			PaidAt:    receipt.PaidAt,
		}, nil
	})
}

func cartSession(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(CartSessionHeader))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, domain.ErrValidation)
	}
	return nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit %q: %w", raw, domain.ErrValidation)
	}
	return limit, nil
}
