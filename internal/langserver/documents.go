package langserver

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.lsp.dev/uri"
)

// Document is a text document the client opened.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
}

// DocumentStore keeps the open documents. Documents the client never opened
// are read from disk.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*Document)}
}

func (s *DocumentStore) Open(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.URI] = &doc
}

// Change replaces the text of an open document. Stale versions are ignored.
func (s *DocumentStore) Change(docURI string, version int32, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docURI]
	if !ok {
		s.docs[docURI] = &Document{URI: docURI, Version: version, Text: text}
		return
	}
	if version != 0 && version < doc.Version {
		return
	}
	doc.Version = version
	doc.Text = text
}

func (s *DocumentStore) Close(docURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docURI)
}

func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Text returns the content of a document, from memory when open.
func (s *DocumentStore) Text(docURI string) (string, error) {
	s.mu.RLock()
	doc, ok := s.docs[docURI]
	s.mu.RUnlock()
	if ok {
		return doc.Text, nil
	}

	if !strings.HasPrefix(docURI, uri.FileScheme+"://") {
		return "", fmt.Errorf("document %s is not open", docURI)
	}
	data, err := os.ReadFile(uri.URI(docURI).Filename())
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", docURI, err)
	}
	return string(data), nil
}

// lines splits text into lines without their terminators.
func lines(text string) []string {
	out := strings.Split(text, "\n")
	for i, l := range out {
		out[i] = strings.TrimSuffix(l, "\r")
	}
	return out
}
