package router

import (
	"net/http"
	"strings"

	"ecolisting-chat-backend/internal/api"
	"ecolisting-chat-backend/internal/api/endpoints"
)

func WebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		wsEndpoints := endpoints.NewWebsocketEndpoints(s.Handler())

		mux.HandleFunc(base+"/chat", s.MakeHTTPHandleFunc(wsEndpoints.Chat))
		mux.HandleFunc(base+"/staff-alerts", s.MakeHTTPHandleFunc(wsEndpoints.StaffAlerts))
		mux.HandleFunc(base+"/rooms", s.MakeHTTPHandleFunc(wsEndpoints.Rooms))
	}
}
