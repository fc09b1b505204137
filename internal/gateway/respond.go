package gateway

import (
	"context"
	"net/http"

	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/protocol"
)

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := protocol.Encode(v)
	if err != nil {
		ctxlog.FromContext(ctx).Error("Failed to encode response.", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		ctxlog.FromContext(ctx).Debug("Failed to write response.", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, detail string) {
	writeJSON(ctx, w, status, protocol.ErrorReply{Detail: detail})
}
