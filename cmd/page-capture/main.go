package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/pagecapture/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	captureInstance *services.CaptureFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Pub/Sub deliveries carry one batch; HTTP triggers may carry several.
	functions.CloudEvent("CapturePages", capturePages)
	functions.HTTP("HandleCaptureBatch", handleCaptureBatch)
}

// main is required by the Go Functions Framework.
func main() {}

func initialize() error {
	once.Do(func() {
		captureInstance, initErr = services.NewCapture(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return initErr
}

func capturePages(ctx context.Context, e cloudevents.Event) error {
	if err := initialize(); err != nil {
		return err
	}
	return captureInstance.HandleCloudEvent(ctx, e)
}

func handleCaptureBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := initialize(); err != nil {
		http.Error(w, "Service unavailable", http.StatusInternalServerError)
		return
	}
	captureInstance.ServeHTTP(w, r)
}
