package api

const (
	CallerIdHeader  = "feature-server-caller-id"
	AuthTokenHeader = "feature-server-auth-token"
)

// ClientRegistry lists the registered callers and their tokens. config.Manager satisfies it.
type ClientRegistry interface {
	GetAllRegisteredClients() map[string]string
}

func IsAuthorized(clients ClientRegistry, callerId, authToken string) bool {
	token, ok := clients.GetAllRegisteredClients()[callerId]
	if !ok {
		return false
	}
	return token == authToken
}
