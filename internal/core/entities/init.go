// Package entities registers the fleet entity types with core.
// Import it for side effects:
//
//	import _ "github.com/paulodiramos/tvdefleetonline-sub002/internal/core/entities"
package entities

import "github.com/paulodiramos/tvdefleetonline-sub002/internal/core"

func init() {
	core.Register(Motoristas())
	core.Register(Veiculos())
}
