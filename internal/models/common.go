package models

import "github.com/golang-jwt/jwt/v5"

// Pagination carries list metadata on the response envelope.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ActorClaims is the gateway-issued token payload identifying who is calling.
// The gateway authenticates; this service only decodes the identity for the
// audit ledger.
type ActorClaims struct {
	ActorType string `json:"actorType"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// ToActor converts claims plus the request origin into a ledger actor.
func (c *ActorClaims) ToActor(ip string) Actor {
	actorType := c.ActorType
	if actorType == "" {
		actorType = ActorStaff
	}
	return Actor{
		Type:     actorType,
		ID:       c.Subject,
		Username: c.Username,
		IP:       ip,
	}
}
