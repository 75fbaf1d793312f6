package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rankpilot/rankpilot/internal/fingerprint"
	"github.com/rankpilot/rankpilot/pkg/useragent"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
	<title>  Widget Catalog  </title>
	<meta name="description" content="The best widgets in town.">
	<script>var tracking = true;</script>
	<style>body { color: red; }</style>
</head>
<body>
	<nav>Home | About | Contact</nav>
	<header>Widget Co</header>
	<main>
		<h1>Widgets</h1>
		<p>We sell    premium
		widgets.</p>
	</main>
	<footer>Copyright Widget Co</footer>
</body>
</html>`

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("expected User-Agent header, got none")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer ts.Close()

	fetcher, err := NewFetcher(Config{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBot/1.0"}),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := fetcher.Fetch(context.Background(), ts.URL)

	if res.Failed() {
		t.Fatalf("expected no fetch error, got %s", res.Error)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", res.StatusCode)
	}
	if res.Title != "Widget Catalog" {
		t.Errorf("expected trimmed title, got %q", res.Title)
	}
	if res.MetaDescription != "The best widgets in town." {
		t.Errorf("unexpected meta description %q", res.MetaDescription)
	}
	for _, stripped := range []string{"tracking", "color: red", "Home | About", "Widget Co", "Copyright"} {
		if strings.Contains(res.Text, stripped) {
			t.Errorf("expected %q to be stripped from text, got %q", stripped, res.Text)
		}
	}
	if !strings.Contains(res.Text, "We sell premium widgets.") {
		t.Errorf("expected whitespace-collapsed content, got %q", res.Text)
	}
	if res.TextLength != len(res.Text) {
		t.Errorf("expected text length %d, got %d", len(res.Text), res.TextLength)
	}
	if res.ID == "" {
		t.Errorf("expected non-empty ID")
	}
	if res.Duration == 0 {
		t.Errorf("expected non-zero duration")
	}
}

func TestFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Timeout:     20 * time.Millisecond,
		Fingerprint: fingerprint.ProfileGo,
	}, nil)

	start := time.Now()
	res := fetcher.Fetch(context.Background(), ts.URL)

	if !res.Failed() || !strings.Contains(res.Error, "request failed") {
		t.Errorf("expected timeout to surface as error payload, got %q", res.Error)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("expected fetch to abort within the timeout bound")
	}
}

func TestFetcher_UnreachableHost(t *testing.T) {
	fetcher, _ := NewFetcher(Config{
		Timeout:     2 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
	}, nil)

	res := fetcher.Fetch(context.Background(), "http://127.0.0.1:1/nope")

	if !res.Failed() {
		t.Fatal("expected error payload for unreachable host")
	}
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{Fingerprint: fingerprint.ProfileGo}, nil)

	res := fetcher.Fetch(context.Background(), ts.URL)

	if !res.Failed() || !strings.Contains(res.Error, "unexpected status 410") {
		t.Errorf("expected status error payload, got %q", res.Error)
	}
	if res.StatusCode != http.StatusGone {
		t.Errorf("expected status code recorded, got %d", res.StatusCode)
	}
}

func TestFetcher_RespectsRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>open</body></html>"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Fingerprint:   fingerprint.ProfileGo,
		RespectRobots: true,
	}, nil)

	res := fetcher.Fetch(context.Background(), ts.URL+"/private/page")
	if !res.Failed() || !strings.Contains(res.Error, "robots.txt") {
		t.Errorf("expected robots denial, got %q", res.Error)
	}

	res = fetcher.Fetch(context.Background(), ts.URL+"/public")
	if res.Failed() {
		t.Errorf("expected allowed fetch to succeed, got %q", res.Error)
	}
}
