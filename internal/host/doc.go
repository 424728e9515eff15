// Package host is the journal's view of the editor it runs in: a command
// registry, disposable subscriptions, and a Window for messages, prompts,
// documents and tree views. The Neovim and terminal bindings implement it.
package host
