package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *ClientMessage
		wantErr bool
	}{
		{
			name: "change",
			raw:  `{"type":"change","key":"foo","value":"3"}`,
			want: &ClientMessage{Type: TypeChange, Key: "foo", Value: "3"},
		},
		{
			name: "export all",
			raw:  `{"type":"export_all","value":"true"}`,
			want: &ClientMessage{Type: TypeExportAll, Value: "true"},
		},
		{name: "change without key", raw: `{"type":"change","value":"3"}`, wantErr: true},
		{name: "unknown type", raw: `{"type":"click","key":"foo"}`, wantErr: true},
		{name: "not json", raw: `change foo=3`, wantErr: true},
		{name: "long key", raw: `{"type":"change","key":"` + strings.Repeat("k", MaxKeyLength+1) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientMessage([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeClientMessage() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeClientMessage() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeClientMessageTooLarge(t *testing.T) {
	raw := make([]byte, MaxMessageSize+1)
	if _, err := DecodeClientMessage(raw); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("DecodeClientMessage() = %v, want ErrMessageTooLarge", err)
	}
}

func TestURLReplaceJSON(t *testing.T) {
	data, err := json.Marshal(NewURLReplace(nil, ""))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"type":"url_replace","query":{},"encoded":""}`; got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestErrorMessage(t *testing.T) {
	em := NewError(ErrConversion, "not an int").WithKey("foo")
	if em.Error() != "Conversion: not an int" {
		t.Errorf("Error() = %q", em.Error())
	}
	data, _ := json.Marshal(em)
	if got, want := string(data), `{"type":"error","code":"Conversion","message":"not an int","key":"foo"}`; got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}

	fatal := NewFatalError(ErrSessionExpired, "gone")
	if !fatal.Fatal || fatal.Error() != "fatal: SessionExpired: gone" {
		t.Errorf("fatal error = %+v", fatal)
	}
}
