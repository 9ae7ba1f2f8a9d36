package qa_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/qa"
	"github.com/KaramelBytes/docqa-cli/internal/qa/qatest"
)

func newClient(url string) *qa.Client {
	return qa.NewClient(url, 2*time.Second, nil)
}

func TestListDocumentsDecodesServiceShape(t *testing.T) {
	srv := qatest.NewServer()
	defer srv.Close()
	srv.AddDocument("a1", "report.pdf")
	srv.AddDocument("b2", "notes.pdf")

	docs, err := newClient(srv.URL).ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a1" || docs[1].Filename != "notes.pdf" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !docs[0].UploadedAt.Equal(want) {
		t.Fatalf("upload date: got %v want %v", docs[0].UploadedAt, want)
	}
}

func TestListDocumentsMissingFieldIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"documents": []any{}})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).ListDocuments(context.Background())
	if !errors.Is(err, qa.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestGetConversationKeepsOrderAndNullAnswers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_conversation/" || r.URL.Query().Get("pdf_id") != "doc 1" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"conversation":[
			{"question":"q1","answer":"a1","timestamp":"2024-05-01 10:00:00.123456"},
			{"question":"q2","answer":null,"timestamp":"2024-05-01T10:01:00Z"}]}`)
	}))
	defer srv.Close()

	turns, err := newClient(srv.URL).GetConversation(context.Background(), "doc 1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Question != "q1" || turns[0].Answer != "a1" || turns[0].Pending {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Answer != "" || turns[1].Pending {
		t.Fatalf("null answer should decode as resolved empty answer: %+v", turns[1])
	}
	if turns[0].AskedAt.Nanosecond() != 123456000 {
		t.Fatalf("fractional seconds lost: %v", turns[0].AskedAt)
	}
}

func TestGetConversationMissingListIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	turns, err := newClient(srv.URL).GetConversation(context.Background(), "x")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected no turns, got %+v", turns)
	}
}

func TestUploadDocumentSendsMultipartPDF(t *testing.T) {
	var gotName, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload_pdf/" {
			http.NotFound(w, r)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "pdf_id": "doc1"})
	}))
	defer srv.Close()

	id, err := newClient(srv.URL).UploadDocument(context.Background(), `a "b".pdf`, bytes.NewReader([]byte("%PDF-1.4 body")))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if id != "doc1" {
		t.Fatalf("unexpected id %q", id)
	}
	if gotName != `a "b".pdf` {
		t.Fatalf("filename not preserved: %q", gotName)
	}
	if gotType != "application/pdf" {
		t.Fatalf("unexpected part content type %q", gotType)
	}
	if string(gotBody) != "%PDF-1.4 body" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestUploadDocumentWithoutIDIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok"})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).UploadDocument(context.Background(), "a.pdf", strings.NewReader("%PDF"))
	if !errors.Is(err, qa.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestAskQuestionRoundTrip(t *testing.T) {
	srv := qatest.NewServer()
	defer srv.Close()
	srv.AddDocument("doc1", "a.pdf")
	srv.Answer = func(id, q string) string { return "It is a report." }

	answer, err := newClient(srv.URL).AskQuestion(context.Background(), "doc1", "What is this?")
	if err != nil {
		t.Fatalf("AskQuestion: %v", err)
	}
	if answer != "It is a report." {
		t.Fatalf("unexpected answer %q", answer)
	}
	conv := srv.Conversation("doc1")
	if len(conv) != 1 || conv[0].Question != "What is this?" {
		t.Fatalf("service did not record the turn: %+v", conv)
	}
}

func TestAskQuestionUnknownDocumentIsNotFound(t *testing.T) {
	srv := qatest.NewServer()
	defer srv.Close()

	_, err := newClient(srv.URL).AskQuestion(context.Background(), "missing", "hi")
	var nf *qa.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T %v", err, err)
	}
	if nf.Detail != "PDF not found or not processed." {
		t.Fatalf("detail not parsed: %q", nf.Detail)
	}
	if nf.RequestID == "" {
		t.Fatalf("expected request id on error")
	}
}

func TestServerErrorIsClassified(t *testing.T) {
	srv := qatest.NewServer()
	defer srv.Close()
	srv.AddDocument("doc1", "a.pdf")
	srv.SetFail(func(s *qatest.Server) { s.FailAsk = true })

	_, err := newClient(srv.URL).AskQuestion(context.Background(), "doc1", "hi")
	var se *qa.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T %v", err, err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", se.StatusCode)
	}
}

func TestValidationErrorDetailList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","question"],"msg":"field required","type":"value_error.missing"}]}`)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).AskQuestion(context.Background(), "doc1", "hi")
	var br *qa.BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "field required") {
		t.Fatalf("expected validation message in error, got %v", err)
	}
}

func TestUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(url).ListDocuments(context.Background())
	var ue *qa.UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T %v", err, err)
	}
}

func TestRequestIDHeaderSent(t *testing.T) {
	var rid string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid = r.Header.Get("X-Request-Id")
		_, _ = io.WriteString(w, `{"pdfs":[]}`)
	}))
	defer srv.Close()

	if _, err := newClient(srv.URL).ListDocuments(context.Background()); err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(rid) != 36 {
		t.Fatalf("expected uuid request id, got %q", rid)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00.5", time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := qa.ParseTimestamp(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("%q: got %v want %v", c.in, got, c.want)
		}
	}
	if _, err := qa.ParseTimestamp("yesterday"); err == nil {
		t.Errorf("expected error for invalid timestamp")
	}
}
