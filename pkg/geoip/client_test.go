package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSkipLookup(t *testing.T) {
	tests := []struct {
		ip   string
		skip bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.0.0.5", true},
		{"192.168.1.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"not-an-ip", true},
		{"", true},
		{"203.0.113.9", false},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.skip, SkipLookup(tt.ip))
		})
	}
}

func TestLookupSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"country":"Germany","city":"Berlin"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	loc := c.Lookup(context.Background(), "203.0.113.9")
	assert.Equal(t, "Germany", loc.Country)
	assert.Equal(t, "Berlin", loc.City)
}

func TestLookupPartialResponseFillsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country":"Germany"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	loc := c.Lookup(context.Background(), "203.0.113.9")
	assert.Equal(t, "Germany", loc.Country)
	assert.Equal(t, Unknown, loc.City)
}

func TestLookupFailuresDegradeToUnknown(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewClient(srv.URL+"/", time.Second)
		loc := c.Lookup(context.Background(), "203.0.113.9")
		assert.Equal(t, Unknown, loc.Country)
	})

	t.Run("unreachable", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1/", 100*time.Millisecond)
		loc := c.Lookup(context.Background(), "203.0.113.9")
		assert.Equal(t, Unknown, loc.Country)
		assert.Equal(t, Unknown, loc.City)
	})

	t.Run("loopback skipped without a request", func(t *testing.T) {
		requests := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
		}))
		defer srv.Close()

		c := NewClient(srv.URL+"/", time.Second)
		loc := c.Lookup(context.Background(), "127.0.0.1")
		assert.Equal(t, Unknown, loc.Country)
		assert.Zero(t, requests)
	})
}
