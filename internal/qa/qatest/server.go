// Package qatest provides an in-memory Document Q&A Service for tests.
package qatest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Turn is a stored question/answer pair.
type Turn struct {
	Question  string
	Answer    string
	Timestamp time.Time
}

// Document is a stored upload.
type Document struct {
	ID         string
	Filename   string
	UploadedAt time.Time
	Data       []byte
}

// Server mimics the HTTP surface of the service. Failure switches make the
// matching endpoint answer with a 500.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	docs          []*Document
	conversations map[string][]Turn
	nextID        int

	FailList    bool
	FailHistory bool
	FailUpload  bool
	FailAsk     bool

	// Answer computes the answer to a question; defaults to an echo.
	Answer func(documentID, question string) string
	// NewID issues document ids; defaults to doc1, doc2, ...
	NewID func() string

	requests []string
}

// NewServer starts a fake service. Callers must Close it.
func NewServer() *Server {
	s := &Server{conversations: map[string][]Turn{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/get_uploaded_pdfs/", s.handleList)
	mux.HandleFunc("/get_conversation/", s.handleConversation)
	mux.HandleFunc("/upload_pdf/", s.handleUpload)
	mux.HandleFunc("/ask_question/", s.handleAsk)
	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// AddDocument seeds a document with an optional history.
func (s *Server) AddDocument(id, filename string, history ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, &Document{ID: id, Filename: filename, UploadedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)})
	s.conversations[id] = append([]Turn(nil), history...)
}

// Documents returns a copy of the stored documents.
func (s *Server) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, *d)
	}
	return out
}

// Conversation returns the stored history of a document.
func (s *Server) Conversation(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.conversations[id]...)
}

// Requests returns "METHOD path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// SetFail toggles failure switches under the server lock.
func (s *Server) SetFail(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		if rid := r.Header.Get("X-Request-Id"); rid != "" {
			w.Header().Set("X-Request-Id", rid)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList {
		writeDetail(w, http.StatusInternalServerError, "list failed")
		return
	}
	pdfs := make([]map[string]any, 0, len(s.docs))
	for _, d := range s.docs {
		pdfs = append(pdfs, map[string]any{
			"pdf_id":      d.ID,
			"filename":    d.Filename,
			"upload_date": d.UploadedAt.Format("2006-01-02 15:04:05.000000"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pdfs": pdfs})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := r.URL.Query().Get("pdf_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailHistory {
		writeDetail(w, http.StatusInternalServerError, "history failed")
		return
	}
	conv := make([]map[string]any, 0, len(s.conversations[id]))
	for _, t := range s.conversations[id] {
		conv = append(conv, map[string]any{
			"question":  t.Question,
			"answer":    t.Answer,
			"timestamp": t.Timestamp.Format("2006-01-02 15:04:05.000000"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	fail := s.FailUpload
	s.mu.Unlock()
	if fail {
		writeDetail(w, http.StatusInternalServerError, "upload failed")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "read file")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var id string
	if s.NewID != nil {
		id = s.NewID()
	} else {
		s.nextID++
		id = fmt.Sprintf("doc%d", s.nextID)
	}
	s.docs = append(s.docs, &Document{ID: id, Filename: hdr.Filename, UploadedAt: time.Now().UTC(), Data: data})
	s.conversations[id] = nil
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "File uploaded and text processed into chunks and embeddings",
		"pdf_id":  id,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Question string `json:"question"`
		PdfID    string `json:"pdf_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAsk {
		writeDetail(w, http.StatusInternalServerError, "ask failed")
		return
	}
	if _, ok := s.conversations[req.PdfID]; !ok {
		writeDetail(w, http.StatusNotFound, "PDF not found or not processed.")
		return
	}
	answer := "echo: " + req.Question
	if s.Answer != nil {
		answer = s.Answer(req.PdfID, req.Question)
	}
	s.conversations[req.PdfID] = append(s.conversations[req.PdfID], Turn{
		Question:  req.Question,
		Answer:    answer,
		Timestamp: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
