// Package builtin registers the connector types compiled into the
// gateway. Config documents reference these by registry key in their
// connectorTypes section; dynamic module loading is not a thing in a
// compiled gateway, so module paths resolve here instead.
package builtin

import (
	"fmt"

	"github.com/edgehub-net/edgehub/pkg/connector"
	"github.com/edgehub-net/edgehub/pkg/connector/cnccloud"
	"github.com/edgehub-net/edgehub/pkg/connector/httpconn"
	"github.com/edgehub-net/edgehub/pkg/connector/sshpoll"
	"github.com/edgehub-net/edgehub/pkg/util"
)

// Types returns the built-in registry-key → constructor table.
func Types() map[string]connector.Constructor {
	return map[string]connector.Constructor{
		"cnccloud": cnccloud.New,
		"http":     httpconn.New,
		"sshpoll":  sshpoll.New,
	}
}

// Resolve looks a registry key up in the built-in table. It is the
// standard TypeResolver for the controller.
func Resolve(key string) (connector.Constructor, error) {
	ctor, ok := Types()[key]
	if !ok {
		return nil, fmt.Errorf("%w: no built-in connector registered for %q", util.ErrUnknownType, key)
	}
	return ctor, nil
}
