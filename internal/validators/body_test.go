package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-automation/internal/errs"
)

type borrowBody struct {
	UserID string `json:"userId" validate:"required"`
	BookID string `json:"bookId" validate:"required"`
	Role   string `json:"role" validate:"omitempty,oneof=user staff admin"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		details map[string]string
	}{
		{name: "valid", body: `{"userId":"u1","bookId":"b1"}`},
		{name: "missing_fields", body: `{}`, wantErr: true, details: map[string]string{"userId": "is required", "bookId": "is required"}},
		{name: "bad_enum", body: `{"userId":"u1","bookId":"b1","role":"root"}`, wantErr: true, details: map[string]string{"role": "must be one of: user staff admin"}},
		{name: "unknown_field", body: `{"userId":"u1","bookId":"b1","extra":1}`, wantErr: true},
		{name: "malformed", body: `{"userId":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var dest borrowBody
			err := DecodeJSONBody(httptest.NewRecorder(), r, &dest)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "u1", dest.UserID)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			if tt.details != nil {
				assert.Equal(t, tt.details, errs.As(err).Details())
			}
		})
	}
}
