package altio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

func TestTouch_String(t *testing.T) {
	tests := []struct {
		name  string
		touch Touch
		want  string
	}{
		{"portrait down", Touch{Phase: PhaseDown, Width: 400, Height: 800, ActiveTouches: 1, X: 100, Y: 200}, "mt/d 400 800 0 1 0 100 200"},
		{"landscape move", Touch{Phase: PhaseMove, Width: 800, Height: 400, ActiveTouches: 1, X: 5, Y: 6}, "mt/m 800 400 1 1 0 5 6"},
		{"second finger up", Touch{Phase: PhaseUp, Width: 300, Height: 300, ActiveTouches: 2, Index: 1, X: 0, Y: 299}, "mt/u 300 300 0 2 1 0 299"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.touch.String())
		})
	}
}

func TestKeyCommand(t *testing.T) {
	assert.Equal(t, "tt/Sauce_Home_Key", KeyCommand(KeyHome))
	assert.Equal(t, "tt/Sauce_Back_Key", KeyCommand(KeyBack))
	assert.Equal(t, "tt/Sauce_Menu_Key", KeyCommand(KeyMenu))

	k, ok := ParseKey("Back")
	assert.True(t, ok)
	assert.Equal(t, KeyBack, k)
	_, ok = ParseKey("volume")
	assert.False(t, ok)
}

func TestAvailableKeys(t *testing.T) {
	tests := []struct {
		name string
		desc models.DeviceSessionDescriptor
		want []Key
	}{
		{"ios with buttons", models.DeviceSessionDescriptor{OS: "IOS", HasOnScreenButtons: true}, []Key{KeyHome}},
		{"ios without buttons", models.DeviceSessionDescriptor{OS: "IOS"}, []Key{KeyHome}},
		{"android without buttons", models.DeviceSessionDescriptor{OS: "ANDROID"}, []Key{KeyHome, KeyBack, KeyMenu}},
		{"android with buttons", models.DeviceSessionDescriptor{OS: "ANDROID", HasOnScreenButtons: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableKeys(tt.desc))
		})
	}
}

func TestNormalizeLine(t *testing.T) {
	keys := []Key{KeyHome, KeyBack}
	tests := []struct {
		name    string
		line    string
		want    string
		wantErr bool
	}{
		{"touch", "mt/d 400 800 0 1 0 100 200", "mt/d 400 800 0 1 0 100 200", false},
		{"touch extra spaces", "  mt/u 400  800 0 1 0 100 200\n", "mt/u 400 800 0 1 0 100 200", false},
		{"touch bad phase", "mt/x 400 800 0 1 0 100 200", "", true},
		{"touch short", "mt/d 400 800", "", true},
		{"touch not a number", "mt/d 400 800 0 1 0 a 200", "", true},
		{"short key", "tt/home", "tt/Sauce_Home_Key", false},
		{"wire key", "tt/Sauce_Back_Key", "tt/Sauce_Back_Key", false},
		{"key not offered", "tt/menu", "", true},
		{"unknown key", "tt/volume", "", true},
		{"garbage", "rm -rf /", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLine(tt.line, keys)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
