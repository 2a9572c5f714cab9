// Package testutil provides common test helpers for AfyaLink: gateway form
// builders, HTTP request helpers and receipt ledger assertions.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/store"
)

// DefaultPhone and DefaultServiceCode are used by USSDForm.
const (
	DefaultPhone       = "+254700111222"
	DefaultServiceCode = "*384*123#"
)

// USSDForm builds the gateway callback body for a session whose caller has
// answered steps so far. No steps gives the empty text of a fresh dial.
func USSDForm(sessionID, phone string, steps ...string) url.Values {
	return url.Values{
		"sessionId":   {sessionID},
		"serviceCode": {DefaultServiceCode},
		"phoneNumber": {phone},
		"text":        {strings.Join(steps, "*")},
	}
}

// NewFormRequest creates a form-encoded request, as the USSD and SMS gateways send.
func NewFormRequest(t *testing.T, method, target string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertUSSDBody checks a gateway response is text/plain and equals want.
func AssertUSSDBody(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain content type, got %q", ct)
	}
	if got := rr.Body.String(); got != want {
		t.Errorf("unexpected USSD body\nwant: %q\ngot:  %q", want, got)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// AssertReceiptCount validates the number of receipts in the ledger.
func AssertReceiptCount(t *testing.T, st store.Store, expected int, context string) {
	t.Helper()
	receipts, err := st.GetReceipts()
	if err != nil {
		t.Fatalf("%s: failed to get receipts: %v", context, err)
	}
	if len(receipts) != expected {
		t.Errorf("%s: expected %d receipts, got %d", context, expected, len(receipts))
	}
}

// SeedReceipts adds sample receipts to the ledger.
func SeedReceipts(t *testing.T, st store.Store) {
	t.Helper()
	seed := []models.Receipt{
		{ID: "rcpt_seed1", To: "+254700111222", Channel: models.ChannelSMS, Kind: "booking_confirmation", Status: models.MessageStatusSent, Time: 1},
		{ID: "rcpt_seed2", To: "+254700333444", Channel: models.ChannelSMS, Kind: "refund", Status: models.MessageStatusFailed, Error: "gateway timeout", Time: 2},
	}
	for _, r := range seed {
		if err := st.AddReceipt(r); err != nil {
			t.Fatalf("failed to add test receipt: %v", err)
		}
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
