package rewards

import (
	"context"
	"net/http"
	"testing"

	"github.com/paylessai/payless-gateway/internal/testutil"
)

func TestSurveysTransformsListing(t *testing.T) {
	var gotQuery map[string]string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get-surveys.php" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = map[string]string{
			"app_id":      r.URL.Query().Get("app_id"),
			"ext_user_id": r.URL.Query().Get("ext_user_id"),
			"secure_hash": r.URL.Query().Get("secure_hash"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"count_available_surveys": 40,
			"count_returned_surveys": 1,
			"surveys": [{
				"id": "s-1",
				"loi": "7",
				"payout_publisher_usd": "0.80",
				"conversion_rate": "0.25",
				"href": "https://surveys.example/s-1",
				"type": "survey",
				"statistics_rating_count": "120",
				"statistics_rating_avg": "4.2"
			}]
		}`))
	})
	srv := testutil.NewIPv4Server(t, handler)
	defer srv.Close()

	c := New(Config{AppID: "app", Secret: "secret", BaseURL: srv.URL, CreditsPerDollar: 100})
	c.httpClient = srv.Client()

	list, err := c.Surveys(context.Background(), "u1", "1.2.3.4", "agent")
	if err != nil {
		t.Fatalf("Surveys: %v", err)
	}
	if gotQuery["app_id"] != "app" || gotQuery["ext_user_id"] != "u1" {
		t.Fatalf("unexpected query %v", gotQuery)
	}
	if gotQuery["secure_hash"] != c.SecureHash("u1") {
		t.Fatalf("secure hash mismatch")
	}
	if list.TotalAvailable != 40 || list.Count != 1 {
		t.Fatalf("unexpected counts %+v", list)
	}
	s := list.Surveys[0]
	if s.CreditsReward != 80 {
		t.Fatalf("expected 80 credits for $0.80, got %v", s.CreditsReward)
	}
	if s.LengthMinutes != 7 || s.RatingCount != 120 {
		t.Fatalf("unexpected survey %+v", s)
	}
}

func TestSurveysRejectsUpstreamError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error"}`))
	})
	srv := testutil.NewIPv4Server(t, handler)
	defer srv.Close()

	c := New(Config{AppID: "app", Secret: "secret", BaseURL: srv.URL})
	c.httpClient = srv.Client()

	if _, err := c.Surveys(context.Background(), "u1", "", ""); err == nil {
		t.Fatalf("expected error for non-success status")
	}
}

func TestSurveysRequiresConfiguration(t *testing.T) {
	c := New(Config{})
	if c.Configured() {
		t.Fatalf("empty config should not be configured")
	}
	if _, err := c.Surveys(context.Background(), "u1", "", ""); err == nil {
		t.Fatalf("expected error when unconfigured")
	}
}

func TestSecureHashStable(t *testing.T) {
	c := New(Config{AppID: "app", Secret: "secret"})
	// MD5("u1-secret")
	if got := c.SecureHash("u1"); got != "0acbca46b959ceb080633fc4a978349d" {
		t.Fatalf("unexpected hash %s", got)
	}
}
