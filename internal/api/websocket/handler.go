package websocket

import (
	"net/http"
	"strings"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/api/middleware"
	"github.com/ajolla/ottowrite-sub001/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler upgrades admin console connections onto the activity hub.
type Handler struct {
	hub        *Hub
	jwtManager *auth.JWTManager
	upgrader   websocket.Upgrader
	logger     *logger.Logger
}

func NewHandler(hub *Hub, jwtManager *auth.JWTManager, allowedOrigins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		hub:        hub,
		jwtManager: jwtManager,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.IsOriginAllowed(origin, allowedOrigins)
			},
		},
	}
}

// ServeActivity streams referral events to admin consoles. Browsers cannot
// set headers on the upgrade request, so a token query parameter is
// accepted alongside the bearer header.
func (h *Handler) ServeActivity(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())
	if principal == nil {
		principal = h.principalFromRequest(r)
	}
	if principal == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !principal.Has(auth.RoleViewer, auth.RoleAdmin, auth.RoleSuperAdmin) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error: %v", err)
		return
	}

	client := NewClient(conn, h.hub, uuid.NewString())
	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()

	h.logger.Debug("Activity client %s opened by admin %d", client.id, principal.AdminID)
}

func (h *Handler) principalFromRequest(r *http.Request) *auth.Principal {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if header := r.Header.Get("Authorization"); token == "" && header != "" {
		token, _ = auth.ExtractTokenFromBearer(header)
	}
	if token == "" || h.jwtManager == nil {
		return nil
	}
	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		return nil
	}
	return auth.NewPrincipal(claims)
}

func (h *Handler) Hub() *Hub {
	return h.hub
}
