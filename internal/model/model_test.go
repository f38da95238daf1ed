package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/selimozcann/seasec/internal/model"
)

func TestSecurityEventValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		ev      model.SecurityEvent
		wantErr bool
	}{
		{name: "valid", ev: model.SecurityEvent{PageURL: "https://example.com/login", HTTPS: true, NumLinks: 3, NumForms: 1}},
		{name: "missingURL", ev: model.SecurityEvent{NumLinks: 1}, wantErr: true},
		{name: "relativeURL", ev: model.SecurityEvent{PageURL: "/login"}, wantErr: true},
		{name: "ftpScheme", ev: model.SecurityEvent{PageURL: "ftp://example.com/file"}, wantErr: true},
		{name: "negativeLinks", ev: model.SecurityEvent{PageURL: "https://example.com", NumLinks: -1}, wantErr: true},
		{name: "negativeForms", ev: model.SecurityEvent{PageURL: "https://example.com", NumForms: -2}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.ev.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
