package demand

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/selivandex/pricing-engine/pkg/models"
)

func TestClient_Forecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("flight_id") != "1001" || q.Get("cabin_class") != "business" || q.Get("days") != "14" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"forecast":[
			{"date":"2026-05-01T00:00:00Z","predicted_demand":120,"recommended_multiplier":1.1},
			{"date":"2026-05-02T00:00:00Z","predicted_demand":90,"recommended_multiplier":0.95}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	points, err := c.Forecast(context.Background(), 1001, models.CabinBusiness, 14)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].RecommendedMultiplier != 1.1 || points[1].PredictedDemand != 90 {
		t.Errorf("unexpected points %+v", points)
	}
}

func TestClient_ForecastErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"forecast":`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			if _, err := NewClient(srv.URL, time.Second).Forecast(context.Background(), 1, models.CabinEconomy, 7); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClient_ForecastTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := NewClient(srv.URL, 5*time.Second).Forecast(ctx, 1, models.CabinEconomy, 7); err == nil {
		t.Error("expected deadline error")
	}
}
