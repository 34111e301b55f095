package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ksred/papertrade/internal/types"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func handle(method string, data interface{}, err error) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", nil)

	Handle(c, data, err)

	var body Response
	json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHandleSuccess(t *testing.T) {
	w, body := handle(http.MethodGet, map[string]string{"ok": "yes"}, nil)
	if w.Code != http.StatusOK || !body.Success {
		t.Errorf("GET success = %d %v, want 200 true", w.Code, body.Success)
	}

	w, _ = handle(http.MethodPost, nil, nil)
	if w.Code != http.StatusCreated {
		t.Errorf("POST success = %d, want 201", w.Code)
	}
}

func TestHandleTypedErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{types.ErrInvalidAction, http.StatusBadRequest, "INVALID_ACTION"},
		{types.ErrMissingLimitPrice, http.StatusBadRequest, "MISSING_PRICE_FIELD"},
		{types.ErrInvalidAccount, http.StatusNotFound, "INVALID_ACCOUNT"},
		{types.ErrNotCancellable, http.StatusConflict, "NOT_CANCELLABLE"},
		{types.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{types.ErrInsufficientShares, http.StatusUnprocessableEntity, "INSUFFICIENT_SHARES"},
		{types.ErrIdemKeyTooLong, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY"},
		{types.ErrIdemKeyReused, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w, body := handle(http.MethodPost, nil, tt.err)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if body.Error == nil || body.Error.Code != tt.code {
				t.Fatalf("error body = %+v, want code %s", body.Error, tt.code)
			}
			if body.Error.Message != tt.err.Error() {
				t.Errorf("message = %q, want %q", body.Error.Message, tt.err.Error())
			}
		})
	}
}

func TestHandleUnknownHidesDetails(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")

	for _, err := range []error{cause, types.Unknown(cause), types.Unknown(gorm.ErrRecordNotFound)} {
		w, body := handle(http.MethodPost, nil, err)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		if body.Error == nil || body.Error.Message == cause.Error() {
			t.Errorf("internal details leaked: %+v", body.Error)
		}
	}
}

func TestHandleRecordNotFound(t *testing.T) {
	w, _ := handle(http.MethodGet, nil, gorm.ErrRecordNotFound)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
