package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its middleware.
// It encapsulates all information needed to register a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// It configures each command with appropriate handlers and middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  []tgbot.Middleware{Recover(deps)},
	}
	handlers["/help"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  []tgbot.Middleware{Recover(deps)},
	}

	// Recover is outermost so a panic anywhere still gets a reply.
	conversationMiddleware := []tgbot.Middleware{Recover(deps), ChatOnly(deps), ObserveUsers(deps)}

	handlers["/chat"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "chat",
		Handler:     NewChatHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  conversationMiddleware,
	}
	handlers["/transcript"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "transcript",
		Handler:     NewTranscriptHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  conversationMiddleware,
	}
	handlers["/clear"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "clear",
		Handler:     NewClearHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  conversationMiddleware,
	}

	return handlers
}
