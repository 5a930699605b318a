package cache

import (
	"testing"
	"time"

	"github.com/p-n-ai/pai-pathfinder/internal/platform/cache/cachetest"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", false},
		{"valid-with-db", "redis://localhost:6379/0", false},
		{"wrong-scheme", "http://localhost:6379", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if opts.ReadTimeout != 2*time.Second || opts.WriteTimeout != 2*time.Second {
				t.Errorf("timeouts = %v/%v, want 2s", opts.ReadTimeout, opts.WriteTimeout)
			}
			if opts.ClientName != ClientName {
				t.Errorf("ClientName = %q, want %q", opts.ClientName, ClientName)
			}
		})
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	_, err := New(t.Context(), "redis://localhost:59999")
	if err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}

func TestNew_Container(t *testing.T) {
	client := cachetest.NewClient(t)

	c, err := New(t.Context(), "redis://"+client.Options().Addr)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	if err := c.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if name, err := c.Client.ClientGetName(t.Context()).Result(); err != nil || name != ClientName {
		t.Errorf("CLIENT GETNAME = %q, %v, want %q", name, err, ClientName)
	}
}
