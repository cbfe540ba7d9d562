package utils

const (
	LoginPath    = "/login"
	RegisterPath = "/register"
	MessagesPath = "/messages"
	ChannelPath  = "/ws"

	DefaultServerURL = "http://127.0.0.1:8000"

	SessionKey = "username"

	RedisUsersHashKey = "chat:users"
	RedisMessagesKey  = "chat:messages"
)
