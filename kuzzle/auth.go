package kuzzle

import (
	"context"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Auth groups the authentication controller actions.
type Auth struct {
	k *Kuzzle
}

// Login authenticates against the given strategy ("local", "ldap", ...) and
// installs the returned token on the client: every subsequent query carries
// it.
func (c *Auth) Login(ctx context.Context, strategy string, credentials map[string]any) (string, error) {
	if strategy == "" {
		return "", types.NewSdkError("auth.login", "strategy argument must not be empty.")
	}
	req := types.NewRequest("auth", "login").
		SetBody(credentials).
		AddToQueryStrings("strategy", strategy)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return "", err
	}
	var result struct {
		Jwt string `json:"jwt"`
	}
	if err := decodeResult(res, &result); err != nil {
		return "", err
	}
	c.k.SetJwt(result.Jwt)
	return result.Jwt, nil
}

// Logout revokes the current token and clears it from the client. The local
// token is dropped even when the backend call fails: a token the server may
// have revoked must not be reused.
func (c *Auth) Logout(ctx context.Context) error {
	_, err := c.k.Query(ctx, types.NewRequest("auth", "logout"), types.NewQueryOptions())
	c.k.SetJwt("")
	return err
}
