package httpadapter

import (
	"net/http"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}

func (rt *Router) createMonitoring(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req createMonitoringRequest
	if err := rt.decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	frequency := domain.MonitoringFrequency(req.Frequency)
	if frequency == "" {
		frequency = domain.FrequencyDaily
	}

	monitoring, err := rt.svc.Monitorings.Create(r.Context(), userID, domain.IdentifierType(req.IdentifierType), req.IdentifierValue, frequency)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, monitoring)
}

func (rt *Router) listMonitorings(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	items, err := rt.svc.Monitorings.List(r.Context(), userID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items))
}

func (rt *Router) getMonitoring(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	detail, err := rt.svc.Monitorings.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) updateMonitoring(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req updateMonitoringRequest
	if err := rt.decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	monitoring, err := rt.svc.Monitorings.SetStatus(r.Context(), userID, r.PathValue("id"), domain.MonitoringStatus(req.Status))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, monitoring)
}

func (rt *Router) listAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	unreadOnly, err := queryFlag(r, "unread")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	alerts, err := rt.svc.Monitorings.Alerts(r.Context(), userID, r.PathValue("id"), unreadOnly)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(alerts))
}

func (rt *Router) markAlertRead(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.svc.Monitorings.MarkAlertRead(r.Context(), userID, r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	unreadOnly, err := queryFlag(r, "unread")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	items, err := rt.svc.Notifications.List(r.Context(), userID, unreadOnly)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items))
}
