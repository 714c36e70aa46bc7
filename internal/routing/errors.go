package routing

import "errors"

var (
	ErrRouteNotFound  = errors.New("route not found")
	ErrInvalidPrefix  = errors.New("prefix length exceeds address width")
	ErrNoNextHopRoute = errors.New("no next-hop route to destination")
)
