// Package authd is an embeddable authentication and session service.
//
// The host application implements UserStore over its user database and
// wires transport; authd owns rate limiting, one-time codes, revocable
// sessions with refresh rotation, and the audit trail, all backed by
// Redis.
//
//	svc, err := authd.New().
//		WithRedis(client).
//		WithUserStore(store).
//		WithConfig(cfg).
//		Build()
package authd
