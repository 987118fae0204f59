package webclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/lotsync/internal/testutil"
	"github.com/raysh454/lotsync/internal/webclient"
)

func requireChrome(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(bin); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary available")
}

func TestChromedpClient_RejectsNonGET(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewChromedpClient(webclient.Config{}, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewChromedpClient: %v", err)
	}
	defer client.Close()

	if _, err := client.Do(context.Background(), &webclient.Request{Method: "POST", URL: "http://x"}); err == nil {
		t.Fatal("expected POST to be rejected")
	}
}

func TestChromedpClient_RendersScriptedInventory(t *testing.T) {
	requireChrome(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><div id="grid"></div>
<script>document.getElementById("grid").innerHTML = "<span class='vdp'>2020 Ford F-150</span>";</script>
</body></html>`)
	}))
	defer ts.Close()

	client, err := webclient.NewChromedpClient(webclient.Config{IdleAfter: 200 * time.Millisecond}, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewChromedpClient: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	resp, err := client.Get(ctx, ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(string(resp.Body), "2020 Ford F-150") {
		t.Errorf("rendered body missing script output: %s", resp.Body)
	}
}
