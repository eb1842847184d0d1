package httpadapter

import "net/http"

type webhookResponse struct {
	Status    string `json:"status"`
	LogID     string `json:"logId,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (rt *Router) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readWebhookBody(w, r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	result, err := rt.svc.Webhooks.Receive(r.Context(), r.PathValue("provider"), body, r.Header)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{
		Status:    "ok",
		LogID:     result.LogID,
		Duplicate: result.Duplicate,
	})
}
