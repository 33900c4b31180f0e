package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "main"},
		{id: "settings-advanced"},
		{id: "worker_2"},
		{id: "", wantErr: true},
		{id: "has space", wantErr: true},
		{id: "dots.not.allowed", wantErr: true},
		{id: "../escape", wantErr: true},
		{id: strings.Repeat("a", MaxIDLength+1), wantErr: true},
	}
	for _, tt := range tests {
		err := ValidateID(tt.id, "logical id")
		if tt.wantErr {
			assert.Error(t, err, tt.id)
		} else {
			assert.NoError(t, err, tt.id)
		}
	}
}

func TestValidateChannelID(t *testing.T) {
	assert.NoError(t, ValidateChannelID("window.bounds.get"))
	assert.NoError(t, ValidateChannelID("log-write"))
	assert.Error(t, ValidateChannelID(""))
	assert.Error(t, ValidateChannelID(".leading"))
	assert.Error(t, ValidateChannelID("trailing."))
	assert.Error(t, ValidateChannelID("sp ace"))
	assert.Error(t, ValidateChannelID("nul\x00"))
}

func TestValidateDepth(t *testing.T) {
	shallow := map[string]interface{}{"a": []interface{}{1, 2}}
	assert.NoError(t, ValidateDepth(shallow, 2))

	var deep interface{} = "leaf"
	for i := 0; i < 5; i++ {
		deep = map[string]interface{}{"n": deep}
	}
	assert.NoError(t, ValidateDepth(deep, 5))
	assert.Error(t, ValidateDepth(deep, 4))
}
