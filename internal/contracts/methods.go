package contracts

// LSP methods exchanged between the client proxy and the journal server.
const (
	MethodInitialize   = "initialize"
	MethodInitialized  = "initialized"
	MethodShutdown     = "shutdown"
	MethodExit         = "exit"
	MethodCancel       = "$/cancelRequest"
	MethodDidOpen      = "textDocument/didOpen"
	MethodDidChange    = "textDocument/didChange"
	MethodDidClose     = "textDocument/didClose"
	MethodCodeAction   = "textDocument/codeAction"
	MethodCompletion   = "textDocument/completion"
	MethodExecute      = "workspace/executeCommand"
	MethodApplyEdit    = "workspace/applyEdit"
	MethodConfigChange = "workspace/didChangeConfiguration"
	MethodWatchedFiles = "workspace/didChangeWatchedFiles"
	MethodShowMessage  = "window/showMessage"
	MethodLogMessage   = "window/logMessage"
)

// FileEvent is one entry of workspace/didChangeWatchedFiles.
type FileEvent struct {
	URI  string `json:"uri"`
	Type int    `json:"type"`
}

// DidChangeWatchedFilesParams is the payload of workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

// File change types of FileEvent.
const (
	FileCreated = 1
	FileChanged = 2
	FileDeleted = 3
)
