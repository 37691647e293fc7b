package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/service"
)

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	item, err := a.service.CreateItem(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleItemLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.ItemLedger(r.Context(), chi.URLParam(r, "id"), parseLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleVerifyItem(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.VerifyItemLedger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := a.service.ListEmployees(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (a *API) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	employee, err := a.service.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": employee})
}

func requireAdmin(r *http.Request) error {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		return apperr.New(apperr.CodeUnauthorized, "authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return apperr.Forbidden("admin role required")
	}
	return nil
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListAccounts(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		a.writeError(w, r, err)
		return
	}
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if employeeID := strings.TrimSpace(req.EmployeeID); employeeID != "" {
		if _, err := a.service.GetEmployee(r.Context(), employeeID); err != nil {
			if apperr.IsCode(err, apperr.CodeNotFound) {
				err = apperr.Validation("employee %s does not exist", employeeID)
			}
			a.writeError(w, r, err)
			return
		}
	}
	account, err := a.auth.CreateAccount(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logger.Info(a.logger.WithFields(r.Context(), map[string]any{"username": account.Username, "role": account.Role}), "user account created")
	writeJSON(w, http.StatusCreated, map[string]any{"user": account})
}

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.RequestFilter{
		Status:      domain.RequestStatus(strings.TrimSpace(query.Get("status"))),
		RequesterID: strings.TrimSpace(query.Get("requester_id")),
		Limit:       parseLimit(r),
	}
	requests, err := a.service.ListRequests(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (a *API) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	created, err := a.service.CreateRequest(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": created})
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	found, err := a.service.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": found})
}

func (a *API) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	updated, err := a.service.UpdateRequest(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": updated})
}

func (a *API) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteRequest(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	cancelled, err := a.service.CancelRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": cancelled})
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	orders, err := a.service.ListDistributionOrders(r.Context(), status, parseLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.DistributionOrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	order, err := a.service.CreateDistributionOrder(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetDistributionOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteDistributionOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.CancelDistributionOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleListOutbound(w http.ResponseWriter, r *http.Request) {
	handovers, err := a.service.ListOutboundHandovers(r.Context(), parseLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handovers": handovers})
}

func (a *API) handleCreateOutbound(w http.ResponseWriter, r *http.Request) {
	var req domain.OutboundHandoverCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	handover, err := a.service.CreateOutboundHandover(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"handover": handover})
}

func (a *API) handleGetOutbound(w http.ResponseWriter, r *http.Request) {
	handover, err := a.service.GetOutboundHandover(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handover": handover})
}

func (a *API) handleDeleteOutbound(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteOutboundHandover(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListInbound(w http.ResponseWriter, r *http.Request) {
	handovers, err := a.service.ListInboundHandovers(r.Context(), parseLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handovers": handovers})
}

func (a *API) handleCreateInbound(w http.ResponseWriter, r *http.Request) {
	var req domain.InboundHandoverInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	handover, err := a.service.CreateInboundHandover(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"handover": handover})
}

func (a *API) handleGetInbound(w http.ResponseWriter, r *http.Request) {
	handover, err := a.service.GetInboundHandover(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handover": handover})
}

func (a *API) handleUpdateInbound(w http.ResponseWriter, r *http.Request) {
	var req domain.InboundHandoverInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	handover, err := a.service.UpdateInboundHandover(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handover": handover})
}

func (a *API) handleDeleteInbound(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteInboundHandover(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListOpname(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.service.ListOpnameSessions(r.Context(), parseLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *API) handleCreateOpname(w http.ResponseWriter, r *http.Request) {
	var req domain.OpnameCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	session, err := a.service.CreateOpnameSession(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

func (a *API) handleGetOpname(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.GetOpnameSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleUpdateOpnameLine(w http.ResponseWriter, r *http.Request) {
	var req domain.OpnameLineUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	session, err := a.service.UpdateOpnameLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleFinalizeOpname(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.FinalizeOpnameSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleCancelOpname(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.CancelOpnameSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleRestockSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := a.service.RestockSuggestions(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.service.ListAuditLogs(r.Context(), parseLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
