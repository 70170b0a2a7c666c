package device

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIsSameDevice(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"empty and default", "", DefaultDeviceID, true},
		{"default and empty", DefaultDeviceID, "", true},
		{"both empty", "", "", true},
		{"identical ids", "hw:1", "hw:1", true},
		{"different ids", "hw:1", "hw:2", false},
		{"default and named", DefaultDeviceID, "hw:1", false},
		{"case matters", "Default", DefaultDeviceID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSameDevice(tt.a, tt.b); got != tt.want {
				t.Errorf("IsSameDevice(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestUseSessionIDToSelectDevice(t *testing.T) {
	session := NewSessionID()

	if !UseSessionIDToSelectDevice(session, "") {
		t.Error("session id with default device should select the device")
	}
	if !UseSessionIDToSelectDevice(session, DefaultDeviceID) {
		t.Error("session id with explicit default device should select the device")
	}
	if UseSessionIDToSelectDevice(session, "hw:1") {
		t.Error("explicit device id must win over the session id")
	}
	if UseSessionIDToSelectDevice(uuid.Nil, "") {
		t.Error("empty session id must not select the device")
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"defaults", func(*Params) {}, false},
		{"48k stereo", func(p *Params) { p.SampleRate = 48000; p.Channels = 2 }, false},
		{"bad rate", func(p *Params) { p.SampleRate = 22050 }, true},
		{"bad channels", func(p *Params) { p.Channels = 6 }, true},
		{"bad depth", func(p *Params) { p.BitDepth = 24 }, true},
		{"zero buffer", func(p *Params) { p.BufferDuration = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("error should wrap ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestParamsBytesPerSecond(t *testing.T) {
	p := Params{SampleRate: 48000, Channels: 2, BitDepth: 16, BufferDuration: time.Millisecond}
	if got := p.BytesPerSecond(); got != 192000 {
		t.Errorf("BytesPerSecond() = %d, want 192000", got)
	}
}

func TestStatusString(t *testing.T) {
	if StatusOK.String() != "ok" {
		t.Errorf("StatusOK.String() = %q", StatusOK.String())
	}
	if Status(99).String() != "unknown" {
		t.Errorf("unknown status should render as unknown, got %q", Status(99).String())
	}
}
