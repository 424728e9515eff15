package main

import (
	"log"

	"github.com/neovim/go-client/nvim/plugin"

	"go-journal/internal/nvimhost"
)

// Connect to Neovim over stdio, register the journal handlers and serve
// until the editor exits.
func main() {
	plugin.Main(func(p *plugin.Plugin) error {
		log.Println("[go-journal] registering handlers")
		return nvimhost.Register(p)
	})
}
