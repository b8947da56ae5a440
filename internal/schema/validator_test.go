package schema

import (
	"errors"
	"testing"

	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		kind    model.Kind
		body    map[string]interface{}
		wantErr bool
	}{
		{"profile ok", model.KindProfile, map[string]interface{}{"userName": "alice", "theme": "dark"}, false},
		{"profile missing userName", model.KindProfile, map[string]interface{}{"name": "Alice"}, true},
		{"profile blank userName", model.KindProfile, map[string]interface{}{"userName": "   "}, true},
		{"profile userName not string", model.KindProfile, map[string]interface{}{"userName": 42}, true},
		{"link ok", model.KindLink, map[string]interface{}{"url": "https://x.dev", "name": "x", "active": true}, false},
		{"link missing url", model.KindLink, map[string]interface{}{"name": "x"}, true},
		{"link active not bool", model.KindLink, map[string]interface{}{"url": "u", "name": "x", "active": "yes"}, true},
		{"widget ok", model.KindWidget, map[string]interface{}{"type": "video"}, false},
		{"widget missing type", model.KindWidget, map[string]interface{}{}, true},
		{"style empty", model.KindStyle, nil, false},
		{"user ok", model.KindUser, map[string]interface{}{"email": "a@b.c"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.kind, tt.body)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.kind, verr.Kind)
			assert.NotEmpty(t, verr.Errors)
		})
	}
}

func TestValidateUnknownKind(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	assert.Error(t, v.Validate("statistics", map[string]interface{}{}))
}
