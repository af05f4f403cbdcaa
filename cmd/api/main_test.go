package main

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

func TestListenAddr(t *testing.T) {
	t.Setenv("PORT", "")
	assert.Equal(t, ":8080", listenAddr("8080"))

	t.Setenv("PORT", "9000")
	assert.Equal(t, ":9000", listenAddr("8080"))
}

func TestServeReturnsAfterCancel(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, logg, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()})
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
