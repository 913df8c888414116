package provider

import (
	"errors"
	"strings"
)

var ErrGatewayNotSupported = errors.New("gateway is not supported")

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	items := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		items[g.Name()] = g
	}
	return &Registry{gateways: items}
}

func (r *Registry) Get(name string) (Gateway, error) {
	gateway, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	return gateway, nil
}
