package router

import (
	"net/http"
	"strings"

	"ecolisting-chat-backend/internal/api"
	"ecolisting-chat-backend/internal/api/endpoints"
	"ecolisting-chat-backend/internal/api/middleware"
)

// ChatRoutes serve customers and guests.
func ChatRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		chatEndpoints := endpoints.NewChatEndpoints(s.Services().Chat, endpoints.ChatPaths{
			ConversationPrefix: base + "/chat/conversations/",
		})

		mux.HandleFunc(base+"/chat/identity", s.MakeHTTPHandleFunc(chatEndpoints.Identity))
		mux.HandleFunc(base+"/chat/open", s.MakeHTTPHandleFunc(chatEndpoints.Open))
		mux.HandleFunc(base+"/chat/conversations", s.MakeHTTPHandleFunc(chatEndpoints.Conversations))
		mux.HandleFunc(base+"/chat/conversations/", s.MakeHTTPHandleFunc(chatEndpoints.ConversationMessages))
		mux.HandleFunc(base+"/chat/guest/messages", s.MakeHTTPHandleFunc(chatEndpoints.GuestMessages))
		mux.HandleFunc(base+"/auth/signout", s.MakeHTTPHandleFunc(chatEndpoints.SignOut))
	}
}

// StaffConversationRoutes serve the staff console.
func StaffConversationRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		services := s.Services()
		convEndpoints := endpoints.NewConversationEndpoints(services.Chat, services.Conversations, services.Policy, endpoints.ConversationPaths{
			ConversationPrefix: base + "/conversations/",
		})
		staffOnly := middleware.RequireStaff(services.Chat)

		mux.HandleFunc(base+"/conversations", s.MakeHTTPHandleFunc(convEndpoints.Conversations, staffOnly))
		mux.HandleFunc(base+"/conversations/", s.MakeHTTPHandleFunc(convEndpoints.ConversationMessages, staffOnly))
	}
}

// PolicyRoutes expose the auto-reply decision at <prefix>/rpc/should_ai_reply.
func PolicyRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		services := s.Services()
		convEndpoints := endpoints.NewConversationEndpoints(services.Chat, services.Conversations, services.Policy, endpoints.ConversationPaths{})

		mux.HandleFunc(base+"/rpc/should_ai_reply", s.MakeHTTPHandleFunc(convEndpoints.ShouldReply, middleware.RequireAPIKey(s.Options().FunctionsKey)))
	}
}
