package httpsse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jwkim/roundtable"
)

func TestOllama_SendStreamsChatChunks(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		fmt.Fprintln(w, `{"message":{"content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(&roundtable.AdapterConfig{Endpoint: srv.URL, Model: "llama3.1:8b"})
	out, err := roundtable.Collect(context.Background(), o, "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "Hello" {
		t.Errorf("out = %q", out)
	}
	if gotModel != "llama3.1:8b" {
		t.Errorf("model = %q", gotModel)
	}
}

func TestOllama_SendMapsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(&roundtable.AdapterConfig{Endpoint: srv.URL})
	_, err := roundtable.Collect(context.Background(), o, "hi")
	if err == nil {
		t.Fatal("expected error from 404")
	}
}

func TestOllama_SendConnectionRefused(t *testing.T) {
	o := NewOllama(&roundtable.AdapterConfig{Endpoint: "http://127.0.0.1:1"})
	_, err := roundtable.Collect(context.Background(), o, "hi")
	if roundtable.KindOf(err) != roundtable.KindConnection {
		t.Fatalf("err = %v, want connection failure", err)
	}
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprintln(w, `{"response":"once upon","done":false}`)
		fmt.Fprintln(w, `{"response":" a time","done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(&roundtable.AdapterConfig{Endpoint: srv.URL})
	ch := make(chan string, 8)
	var out string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range ch {
			out += chunk
		}
	}()
	if err := o.Generate(context.Background(), "a story", ch); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	<-done
	if out != "once upon a time" {
		t.Errorf("out = %q", out)
	}
}

func TestOllama_WithModelDerivesInstance(t *testing.T) {
	base := NewOllama(nil)
	derived := base.WithModel("qwen2.5-coder:7b", "Ollama-Coder")

	if derived.Name() != "ollama-coder" {
		t.Errorf("derived name = %q", derived.Name())
	}
	if derived.DisplayName() != "Ollama-Coder" {
		t.Errorf("derived display name = %q", derived.DisplayName())
	}
	if base.Name() != "ollama" || base.model != ollamaDefaultModel {
		t.Error("deriving mutated the base adapter")
	}
	if derived.(*Ollama).model != "qwen2.5-coder:7b" {
		t.Errorf("derived model = %q", derived.(*Ollama).model)
	}
}

func TestOllama_AvailableAndVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[]}`)
		case "/api/version":
			fmt.Fprint(w, `{"version":"0.5.4"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOllama(&roundtable.AdapterConfig{Endpoint: srv.URL})
	if !o.Available(context.Background()) {
		t.Error("expected available")
	}
	if got := o.Version(context.Background()); got != "Ollama 0.5.4" {
		t.Errorf("version = %q", got)
	}

	down := NewOllama(&roundtable.AdapterConfig{Endpoint: "http://127.0.0.1:1"})
	if down.Available(context.Background()) {
		t.Error("expected unavailable against a closed port")
	}
}

func TestScanNDJSON_StopsOnDone(t *testing.T) {
	input := "{\"n\":1}\n\n{\"n\":2}\n{\"n\":3}\n"
	var seen []int
	err := scanNDJSON(strings.NewReader(input), func(line []byte) (bool, error) {
		var v struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(line, &v); err != nil {
			return false, err
		}
		seen = append(seen, v.N)
		return v.N == 2, nil
	})
	if err != nil {
		t.Fatalf("scanNDJSON: %v", err)
	}
	if len(seen) != 2 || seen[1] != 2 {
		t.Errorf("seen = %v, want reading to stop at 2", seen)
	}
}
