package tool

import (
	"github.com/m-mizutani/wandersync/pkg/memory"
)

// Client contains shared resources that tools can use
type Client struct {
	Memory *memory.Store
}
